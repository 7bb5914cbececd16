package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zulandar/racetiming/internal/models"
	"github.com/zulandar/racetiming/internal/processor"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// inboundCommand is the JSON shape every client->server frame takes on the
// push channel (§6.3): one method name plus whatever arguments it needs.
type inboundCommand struct {
	Method        string `json:"method"`
	EventID       uint   `json:"eventId"`
	SessionID     uint   `json:"sessionId"`
	SessionName   string `json:"sessionName"`
	TZOffsetHours int    `json:"tzOffsetHours"`
	Car           string `json:"car"`
	Data          string `json:"data"` // raw RMonitor line or base64 Multiloop frame, protocol-tagged by relay config
	Protocol      string `json:"protocol"`
}

// RegisterRoutes wires the relay and UI websocket upgrade endpoints plus
// their auth. jwtSecret verifies the bearer token's azp claim; db is used
// only for the SendSessionChange org-ownership check (§4.G).
func RegisterRoutes(router *gin.Engine, h *Hub, db *gorm.DB, jwtSecret string) {
	group := router.Group("/status")
	group.GET("/relay", h.handleRelayUpgrade(db, jwtSecret))
	group.GET("/ui", h.handleUIUpgrade(jwtSecret))
}

func (h *Hub) handleRelayUpgrade(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		azp, err := parseBearerToken(c.GetHeader("Authorization"), jwtSecret)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		conn := NewConnection(uuid.NewString(), KindRelay, ws)
		go conn.WritePump()
		conn.ReadPump(h.relayCommandHandler(c.Request.Context(), db, azp, conn))
		h.RemoveConnection(c.Request.Context(), conn)
	}
}

func (h *Hub) handleUIUpgrade(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := parseBearerToken(c.GetHeader("Authorization"), jwtSecret); err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		conn := NewConnection(uuid.NewString(), KindUI, ws)
		go conn.WritePump()
		conn.ReadPump(h.uiCommandHandler(c.Request.Context(), conn))
		h.RemoveConnection(c.Request.Context(), conn)
	}
}

// relayCommandHandler dispatches SendRMonitor and SendSessionChange.
// SendRMonitor performs no cross-tenant check (checked later on session
// commit, per §4.G); SendSessionChange is the one place a relay's org
// membership is verified before a session row is created.
func (h *Hub) relayCommandHandler(ctx context.Context, db *gorm.DB, azp string, conn *Connection) func([]byte) {
	return func(raw []byte) {
		var cmd inboundCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}

		switch cmd.Method {
		case "SendRMonitor":
			conn.lastSubscribedEvent = cmd.EventID
			if err := h.RegisterRelay(ctx, cmd.EventID, conn); err != nil {
				log.Printf("hub: register relay for event %d: %v", cmd.EventID, err)
			}
			var envelope string
			var err error
			if cmd.Protocol == string(processor.ProtocolMultiloop) {
				envelope, err = processor.EncodeMultiloopFrame([]byte(cmd.Data))
			} else {
				envelope, err = processor.EncodeRMonitorFrame(cmd.Data)
			}
			if err != nil {
				log.Printf("hub: encode frame for event %d: %v", cmd.EventID, err)
				return
			}
			if _, err := h.bus.AppendRMonitorFrame(ctx, cmd.EventID, cmd.SessionID, envelope); err != nil {
				log.Printf("hub: append frame for event %d: %v", cmd.EventID, err)
			}

		case "SendSessionChange":
			if !h.relayOwnsEvent(db, azp, cmd.EventID) {
				log.Printf("hub: relay org %q does not own event %d, dropping session change", azp, cmd.EventID)
				return
			}
			envelope, err := processor.EncodeRMonitorFrame(rmonitorRaceInfoLine(cmd.SessionID, cmd.SessionName))
			if err != nil {
				return
			}
			if _, err := h.bus.AppendRMonitorFrame(ctx, cmd.EventID, cmd.SessionID, envelope); err != nil {
				log.Printf("hub: append session change for event %d: %v", cmd.EventID, err)
			}
		}
	}
}

// relayOwnsEvent verifies the authenticated organization owns eventID
// before a session-changing command is allowed to take effect.
func (h *Hub) relayOwnsEvent(db *gorm.DB, azp string, eventID uint) bool {
	if db == nil {
		return false
	}
	var org models.Organization
	if err := db.Where("short_name = ?", azp).First(&org).Error; err != nil {
		return false
	}
	var ev models.Event
	if err := db.Where("id = ? AND org_id = ?", eventID, org.ID).First(&ev).Error; err != nil {
		return false
	}
	return true
}

// rmonitorRaceInfoLine builds the $B record SendSessionChange maps to:
// the same wire shape the relay would otherwise send directly.
func rmonitorRaceInfoLine(sessionID uint, name string) string {
	return `$B,"` + strconv.FormatUint(uint64(sessionID), 10) + `","` + name + `"`
}

// uiCommandHandler dispatches SubscribeToEvent/UnsubscribeFromEvent and
// SubscribeToControlLogs/UnsubscribeFromControlLogs. On subscribe, it
// requests a fresh snapshot via the bus rather than reading state
// directly, since the owning processor is the sole writer (§3.3).
func (h *Hub) uiCommandHandler(ctx context.Context, conn *Connection) func([]byte) {
	return func(raw []byte) {
		var cmd inboundCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}

		switch cmd.Method {
		case "SubscribeToEvent":
			conn.lastSubscribedEvent = cmd.EventID
			if err := h.SubscribeToEvent(ctx, cmd.EventID, conn); err != nil {
				log.Printf("hub: subscribe connection %s to event %d: %v", conn.ID, cmd.EventID, err)
				return
			}
			if err := h.bus.PublishSendFullStatus(ctx, conn.ID); err != nil {
				log.Printf("hub: request snapshot for connection %s: %v", conn.ID, err)
			}

		case "UnsubscribeFromEvent":
			if err := h.UnsubscribeFromEvent(ctx, cmd.EventID, conn.ID); err != nil {
				log.Printf("hub: unsubscribe connection %s from event %d: %v", conn.ID, cmd.EventID, err)
			}

		case "SubscribeToControlLogs", "SubscribeToCarControlLogs":
			h.SubscribeToControlLogs(cmd.EventID, cmd.Car, conn)
			if err := h.bus.PublishSendControlLog(ctx, conn.ID); err != nil {
				log.Printf("hub: request control log snapshot for connection %s: %v", conn.ID, err)
			}

		case "UnsubscribeFromControlLogs":
			h.UnsubscribeFromControlLogs(cmd.EventID, cmd.Car, conn.ID)
		}
	}
}

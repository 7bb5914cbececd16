// Package orchestrator implements the cluster control plane (§4.H): one
// singleton that scans relay liveness, keeps Events.is-live in sync, tears
// down expired events' workers, and ensures each live event has its
// processor/logger/control-log jobs running. Built in the shape of the
// teacher's internal/yardmaster + internal/orchestration daemon loop,
// re-pointed from tmux panes to worker jobs.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/gorm"
)

const (
	defaultScanInterval   = 10 * time.Second
	defaultExpiredTimeout = 10 * time.Minute
	defaultDrainWait      = 15 * time.Second
	defaultServicePort    = 8080
)

// Config configures the orchestrator daemon.
type Config struct {
	DB         *gorm.DB
	Bus        bus.Client
	Supervisor WorkerSupervisor

	ScanInterval   time.Duration
	ExpiredTimeout time.Duration
	DrainWait      time.Duration

	ProcessorImage   string
	LoggerImage      string
	ControlLogImage  string
	ServicePort      int
	EnvBase          map[string]string // shared env: db/bus DSNs, secrets
}

func (c *Config) setDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}
	if c.ExpiredTimeout <= 0 {
		c.ExpiredTimeout = defaultExpiredTimeout
	}
	if c.DrainWait <= 0 {
		c.DrainWait = defaultDrainWait
	}
	if c.ServicePort <= 0 {
		c.ServicePort = defaultServicePort
	}
	if c.Supervisor == nil {
		c.Supervisor = DefaultSupervisor
	}
}

// Orchestrator runs the periodic scan loop.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and returns a ready-to-run Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("orchestrator: db is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("orchestrator: bus is required")
	}
	cfg.setDefaults()
	return &Orchestrator{cfg: cfg}, nil
}

// Run scans every ScanInterval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := o.tick(ctx); err != nil {
			log.Printf("orchestrator: tick: %v", err)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) error {
	heartbeats, err := o.cfg.Bus.RelayHeartbeats(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: read relay heartbeats: %w", err)
	}

	if err := o.updateLiveEvents(heartbeats); err != nil {
		log.Printf("orchestrator: update live events: %v", err)
	}

	now := time.Now()
	var expired, active []bus.RelayConnectionEventEntry
	for _, entry := range heartbeats {
		if now.Sub(entry.LastSeen) > o.cfg.ExpiredTimeout {
			expired = append(expired, entry)
		} else {
			active = append(active, entry)
		}
	}

	if len(expired) > 0 {
		o.handleExpired(ctx, expired)
	}

	if err := o.gcOrphanJobs(active); err != nil {
		log.Printf("orchestrator: gc orphan jobs: %v", err)
	}

	for _, entry := range active {
		if err := o.ensureJobs(entry.EventID); err != nil {
			log.Printf("orchestrator: ensure jobs for event %d: %v", entry.EventID, err)
		}
	}

	return nil
}

// updateLiveEvents sets Events.is-live to match exactly the heartbeated
// event-ids; everything else goes false (§4.H.2).
func (o *Orchestrator) updateLiveEvents(heartbeats map[uint]bus.RelayConnectionEventEntry) error {
	ids := make([]uint, 0, len(heartbeats))
	for id := range heartbeats {
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		if err := o.cfg.DB.Model(&models.Event{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{"is_live": true}).Error; err != nil {
			return fmt.Errorf("orchestrator: mark live events: %w", err)
		}
		if err := o.cfg.DB.Model(&models.Event{}).
			Where("id NOT IN ? AND is_live = ?", ids, true).
			Updates(map[string]interface{}{"is_live": false}).Error; err != nil {
			return fmt.Errorf("orchestrator: mark non-live events: %w", err)
		}
		return nil
	}

	return o.cfg.DB.Model(&models.Event{}).
		Where("is_live = ?", true).
		Updates(map[string]interface{}{"is_live": false}).Error
}

// handleExpired runs §4.H.3: pre-shutdown broadcast, drain wait, then
// teardown of each expired event's heartbeat entry and worker jobs+services.
func (o *Orchestrator) handleExpired(ctx context.Context, expired []bus.RelayConnectionEventEntry) {
	ids := make([]uint, len(expired))
	for i, e := range expired {
		ids[i] = e.EventID
	}

	if err := o.cfg.Bus.PublishShutdownSignal(ctx, ids); err != nil {
		log.Printf("orchestrator: publish pre-shutdown signal: %v", err)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(o.cfg.DrainWait):
	}

	for _, id := range ids {
		if err := o.cfg.Bus.DeleteRelayHeartbeat(ctx, id); err != nil {
			log.Printf("orchestrator: delete heartbeat for event %d: %v", id, err)
		}
		o.teardownEventWorkers(id)
	}
}

// teardownEventWorkers deletes every job and service whose name contains
// this event's marker, not just the three canonical names, so a renamed or
// orphaned worker is still reaped (§4.H.3.c).
func (o *Orchestrator) teardownEventWorkers(eventID uint) {
	jobs, err := o.cfg.Supervisor.ListJobs()
	if err != nil {
		log.Printf("orchestrator: list jobs while tearing down event %d: %v", eventID, err)
	}
	for _, name := range jobs {
		if jobNameContains(name, eventID) {
			if err := o.cfg.Supervisor.DeleteJob(name); err != nil {
				log.Printf("orchestrator: delete job %s: %v", name, err)
			}
		}
	}

	services, err := o.cfg.Supervisor.ListServices()
	if err != nil {
		log.Printf("orchestrator: list services while tearing down event %d: %v", eventID, err)
	}
	for _, name := range services {
		if jobNameContains(name, eventID) {
			if err := o.cfg.Supervisor.DeleteService(name); err != nil {
				log.Printf("orchestrator: delete service %s: %v", name, err)
			}
		}
	}
}

// gcOrphanJobs deletes worker jobs whose name doesn't correspond to any
// currently active event (§4.H.4).
func (o *Orchestrator) gcOrphanJobs(active []bus.RelayConnectionEventEntry) error {
	jobs, err := o.cfg.Supervisor.ListJobs()
	if err != nil {
		return fmt.Errorf("orchestrator: list jobs: %w", err)
	}

	for _, name := range jobs {
		owned := false
		for _, entry := range active {
			if jobNameContains(name, entry.EventID) {
				owned = true
				break
			}
		}
		if !owned {
			if err := o.cfg.Supervisor.DeleteJob(name); err != nil {
				log.Printf("orchestrator: gc orphan job %s: %v", name, err)
			}
		}
	}

	return nil
}

// ensureJobs creates the processor, logger, and (when the owning org has a
// control-log-type configured) control-log jobs for eventID, plus the
// processor's paired ClusterIP service, if they don't already exist
// (§4.H.5). Creation is idempotent: an existence check precedes every
// create.
func (o *Orchestrator) ensureJobs(eventID uint) error {
	var event models.Event
	if err := o.cfg.DB.First(&event, eventID).Error; err != nil {
		return fmt.Errorf("orchestrator: load event %d: %w", eventID, err)
	}
	var org models.Organization
	if err := o.cfg.DB.First(&org, event.OrgID).Error; err != nil {
		return fmt.Errorf("orchestrator: load organization %d for event %d: %w", event.OrgID, eventID, err)
	}

	env := o.envFor(eventID, event.OrgID)

	procName := processorJobName(org.ShortName, eventID)
	if !o.cfg.Supervisor.JobExists(procName) {
		if err := o.cfg.Supervisor.CreateJob(JobSpec{Name: procName, Image: o.cfg.ProcessorImage, Env: env}); err != nil {
			return fmt.Errorf("orchestrator: create processor job %s: %w", procName, err)
		}
	}

	svcName := processorServiceName(org.ShortName, eventID)
	if !o.cfg.Supervisor.ServiceExists(svcName) {
		if err := o.cfg.Supervisor.CreateService(ServiceSpec{Name: svcName, TargetJob: procName, Port: o.cfg.ServicePort}); err != nil {
			return fmt.Errorf("orchestrator: create processor service %s: %w", svcName, err)
		}
	}

	loggerName := loggerJobName(org.ShortName, eventID)
	if !o.cfg.Supervisor.JobExists(loggerName) {
		if err := o.cfg.Supervisor.CreateJob(JobSpec{Name: loggerName, Image: o.cfg.LoggerImage, Env: env}); err != nil {
			return fmt.Errorf("orchestrator: create logger job %s: %w", loggerName, err)
		}
	}

	if org.ControlLogType != "" {
		clName := controlLogJobName(org.ShortName, eventID)
		if !o.cfg.Supervisor.JobExists(clName) {
			clEnv := make(map[string]string, len(env)+1)
			for k, v := range env {
				clEnv[k] = v
			}
			clEnv["control_log_type"] = org.ControlLogType
			if err := o.cfg.Supervisor.CreateJob(JobSpec{Name: clName, Image: o.cfg.ControlLogImage, Env: clEnv}); err != nil {
				return fmt.Errorf("orchestrator: create control-log job %s: %w", clName, err)
			}
		}
	}

	return nil
}

// envFor builds the per-process env vars §6.6 specifies, layered on top of
// the shared EnvBase (DB/bus connection strings, secrets).
func (o *Orchestrator) envFor(eventID, orgID uint) map[string]string {
	env := make(map[string]string, len(o.cfg.EnvBase)+2)
	for k, v := range o.cfg.EnvBase {
		env[k] = v
	}
	env["event_id"] = fmt.Sprintf("%d", eventID)
	env["org_id"] = fmt.Sprintf("%d", orgID)
	return env
}

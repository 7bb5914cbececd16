// Package discord implements notify.Adapter over a REST-only discordgo
// session: no Gateway connection, since this adapter never listens.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/racetiming/internal/notify"
)

// session abstracts the discordgo.Session methods this adapter uses.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter posts notify.Events to a single Discord channel.
type Adapter struct {
	sess      session
	botToken  string
	channelID string
}

// AdapterOpts holds parameters for creating an Adapter.
type AdapterOpts struct {
	BotToken  string
	ChannelID string
	Session   session // for testing: inject a mock session
}

// New creates a Discord notify.Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify/discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify/discord: channel id is required")
	}
	return &Adapter{sess: opts.Session, botToken: opts.BotToken, channelID: opts.ChannelID}, nil
}

// Connect lazily constructs the real discordgo session if none was injected.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.sess == nil {
		s, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("notify/discord: new session: %w", err)
		}
		a.sess = s
	}
	return nil
}

// Send posts evt as a Discord embed.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	if a.sess == nil {
		return fmt.Errorf("notify/discord: not connected")
	}

	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
		Color:       colorFor(evt.Severity),
	}
	for _, f := range evt.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}

	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		return fmt.Errorf("notify/discord: send embed: %w", err)
	}
	return nil
}

// Close is a no-op: a REST-only session holds no connection to tear down.
func (a *Adapter) Close() error { return nil }

func colorFor(sev notify.Severity) int {
	switch sev {
	case notify.SeverityError:
		return 0xd00000
	case notify.SeverityWarning:
		return 0xe8a33d
	default:
		return 0x36a64f
	}
}

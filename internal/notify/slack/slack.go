// Package slack implements notify.Adapter using a plain bot token, not
// Socket Mode: this adapter only posts, it never listens.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/racetiming/internal/notify"
)

const maxRetries = 3

// client abstracts the Slack API surface this adapter uses, for test mocks.
type client interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts notify.Events to a single Slack channel.
type Adapter struct {
	client    client
	botToken  string
	channelID string
}

// AdapterOpts holds parameters for creating an Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	Client    client // for testing: inject a mock client
}

// New creates a Slack notify.Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify/slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify/slack: channel id is required")
	}
	return &Adapter{client: opts.Client, botToken: opts.BotToken, channelID: opts.ChannelID}, nil
}

// Connect lazily constructs the real Slack client if none was injected.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client == nil {
		a.client = slackapi.New(a.botToken)
	}
	return nil
}

// Send posts evt as a Slack attachment, retrying on rate limits.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	if a.client == nil {
		return fmt.Errorf("notify/slack: not connected")
	}

	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    colorFor(evt.Severity),
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: true})
	}

	return retryOnRateLimit(ctx, func() error {
		_, _, err := a.client.PostMessage(a.channelID, slackapi.MsgOptionAttachments(att), slackapi.MsgOptionText(evt.Title, false))
		return err
	})
}

// Close is a no-op: there is no persistent connection to tear down.
func (a *Adapter) Close() error { return nil }

func colorFor(sev notify.Severity) string {
	switch sev {
	case notify.SeverityError:
		return "#d00000"
	case notify.SeverityWarning:
		return "#e8a33d"
	default:
		return "#36a64f"
	}
}

func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return fmt.Errorf("notify/slack: post message: %w", err)
		}
		if attempt == maxRetries {
			return fmt.Errorf("notify/slack: post message: %w", err)
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// Package archive implements the daily archive/purge service (§4.I): it
// uploads completed events' logs, laps, device data, flags, and competitor
// metadata to object storage, then flips is_archived and purges the
// CarLastLap cache. Structured on the teacher's telegraph digest scheduler
// (internal/telegraph/cron.go, telegraph.go's runDigestScheduler): parse a
// cron expression, sleep until it next fires, loop.
package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/models"
	"github.com/zulandar/racetiming/internal/notify"
	"gorm.io/gorm"
)

const (
	defaultCronExpr      = "0 0 * * *" // midnight, in Config.Location
	defaultRetryAttempts = 3
	defaultRetrySpacing  = 5 * time.Minute
	defaultExceptionWait = time.Hour
	defaultPurgeAfter    = 24 * time.Hour
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config configures the archive service.
type Config struct {
	DB       *gorm.DB
	Bus      bus.Client
	Uploader Uploader
	Notifier *notify.Notifier

	// Cron is a standard 5-field expression evaluated in Location. Defaults
	// to midnight.
	Cron     string
	Location *time.Location

	RetryAttempts int
	RetrySpacing  time.Duration
	ExceptionWait time.Duration
	PurgeAfter    time.Duration // how stale a simulated event must be to purge
}

func (c *Config) setDefaults() {
	if c.Cron == "" {
		c.Cron = defaultCronExpr
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetrySpacing <= 0 {
		c.RetrySpacing = defaultRetrySpacing
	}
	if c.ExceptionWait <= 0 {
		c.ExceptionWait = defaultExceptionWait
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = defaultPurgeAfter
	}
	if c.Notifier == nil {
		c.Notifier = notify.New()
	}
}

// Service runs the scheduled archive/purge loop.
type Service struct {
	cfg      Config
	db       *gorm.DB
	bus      bus.Client
	uploader Uploader
}

// New validates cfg and returns a ready-to-run Service.
func New(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("archive: db is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("archive: bus is required")
	}
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("archive: uploader is required")
	}
	cfg.setDefaults()
	return &Service{cfg: cfg, db: cfg.DB, bus: cfg.Bus, uploader: cfg.Uploader}, nil
}

// Run blocks, waking at every cron fire to run one archive pass and one
// simulated-event purge pass, until ctx is cancelled. An unexpected
// top-level panic/error from a pass is logged and retried after
// ExceptionWait rather than crashing the loop (§4.I's final paragraph).
func (s *Service) Run(ctx context.Context) error {
	for {
		wait := s.nextFireDelay()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := s.runPassWithExceptionGuard(ctx); err != nil {
			log.Printf("archive: pass failed, waiting %s before retry: %v", s.cfg.ExceptionWait, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.ExceptionWait):
			}
		}
	}
}

func (s *Service) nextFireDelay() time.Duration {
	sched, err := cronParser.Parse(s.cfg.Cron)
	if err != nil {
		log.Printf("archive: invalid cron %q, defaulting to 24h: %v", s.cfg.Cron, err)
		return 24 * time.Hour
	}
	now := time.Now().In(s.cfg.Location)
	d := sched.Next(now).Sub(now)
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (s *Service) runPassWithExceptionGuard(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("archive: panic during pass: %v", r)
		}
	}()
	s.RunArchive(ctx)
	s.RunSimulatedEventPurge(ctx)
	return nil
}

// RunArchive archives every eligible event (§4.I), retrying each
// individually-failing event up to RetryAttempts times, RetrySpacing apart,
// without blocking other eligible events. It returns an error if the
// eligible events cannot be listed or if any event still failed after its
// retries. Intended to be callable directly by the one-shot `--run-archive`
// CLI flag as well as the scheduled loop.
func (s *Service) RunArchive(ctx context.Context) error {
	events, err := s.eligibleForArchive()
	if err != nil {
		log.Printf("archive: list eligible events: %v", err)
		return fmt.Errorf("archive: list eligible events: %w", err)
	}

	failed := 0
	for _, event := range events {
		if err := s.archiveWithRetry(ctx, event); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("archive: %d of %d eligible events failed", failed, len(events))
	}
	return nil
}

func (s *Service) archiveWithRetry(ctx context.Context, event models.Event) error {
	var org models.Organization
	if err := s.db.First(&org, event.OrgID).Error; err != nil {
		log.Printf("archive: load organization %d for event %d: %v", event.OrgID, event.ID, err)
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		lastErr = s.archiveEvent(ctx, event, org)
		if lastErr == nil {
			break
		}
		log.Printf("archive: event %d attempt %d/%d failed: %v", event.ID, attempt, s.cfg.RetryAttempts, lastErr)
		if attempt < s.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetrySpacing):
			}
		}
	}

	if lastErr != nil {
		s.notifyFailure(ctx, event, lastErr)
		return lastErr
	}

	if err := s.finalizeArchive(event.ID); err != nil {
		log.Printf("archive: finalize event %d: %v", event.ID, err)
		s.notifyFailure(ctx, event, err)
		return err
	}
	return nil
}

// finalizeArchive orders the is_archived flip before the CarLastLap purge,
// per §4.I's transaction ordering rule: purge only after successful upload
// and flag flip.
func (s *Service) finalizeArchive(eventID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Event{}).Where("id = ?", eventID).
			Update("is_archived", true).Error; err != nil {
			return fmt.Errorf("flip is_archived: %w", err)
		}
		if err := purgeCarLastLaps(tx, eventID); err != nil {
			return fmt.Errorf("purge CarLastLaps: %w", err)
		}
		return nil
	})
}

func (s *Service) notifyFailure(ctx context.Context, event models.Event, cause error) {
	if err := s.cfg.Notifier.Send(ctx, notify.Event{
		Title:    fmt.Sprintf("archive failed for event %d", event.ID),
		Body:     cause.Error(),
		Severity: notify.SeverityError,
		Fields: []notify.Field{
			{Name: "event_id", Value: fmt.Sprintf("%d", event.ID)},
			{Name: "org_id", Value: fmt.Sprintf("%d", event.OrgID)},
		},
	}); err != nil {
		log.Printf("archive: notify failure for event %d: %v", event.ID, err)
	}
}

func (s *Service) eligibleForArchive() ([]models.Event, error) {
	var events []models.Event
	cutoff := time.Now().Add(-s.cfg.PurgeAfter)
	err := s.db.Where("is_archived = ? AND end_date < ? AND is_live = ? AND is_simulation = ?",
		false, cutoff, false, false).Find(&events).Error
	return events, err
}

// RunSimulatedEventPurge deletes simulated events older than PurgeAfter
// without archiving them (§4.I), returning the first error met. Callable
// directly by the one-shot `--run-simulated-event-purge` CLI flag as well
// as the scheduled loop.
func (s *Service) RunSimulatedEventPurge(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.PurgeAfter)
	var events []models.Event
	if err := s.db.Where("is_simulation = ? AND end_date < ?", true, cutoff).Find(&events).Error; err != nil {
		log.Printf("archive: list simulated events to purge: %v", err)
		return fmt.Errorf("archive: list simulated events to purge: %w", err)
	}

	var firstErr error
	for _, event := range events {
		if err := s.purgeSimulatedEvent(event.ID); err != nil {
			log.Printf("archive: purge simulated event %d: %v", event.ID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("archive: purge simulated event %d: %w", event.ID, err)
			}
		}
	}
	return firstErr
}

func (s *Service) purgeSimulatedEvent(eventID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := purgeCarLastLaps(tx, eventID); err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.CarLapLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.FlagLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.RelayLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, eventID).Error
	})
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
)

// Event is the message handed to subscribers (payment, video, notification services).
type Event struct {
	ID            int64           `json:"id"`
	Type          string          `json:"event_type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher delivers one event. An error leaves the event unpublished for the next run.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Store is the slice of the appointment repository the dispatcher needs.
type Store interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]appointment.EventLog, error)
	MarkEventPublished(ctx context.Context, id int64, at time.Time) error
}

type Dispatcher struct {
	store     Store
	publisher Publisher
	batch     int
	log       zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(store Store, publisher Publisher, batch int, log zerolog.Logger) *Dispatcher {
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		batch:     batch,
		log:       log,
		now:       time.Now,
	}
}

func FromLog(ev appointment.EventLog) Event {
	out := Event{
		ID:            ev.ID,
		Type:          ev.EventType,
		AppointmentID: ev.AppointmentID,
		OccurredAt:    ev.CreatedAt,
	}
	if len(ev.Payload) > 0 {
		out.Payload = json.RawMessage(ev.Payload)
	}
	return out
}

// RunOnce publishes up to one batch in id order and stops at the first failure so
// subscribers never see events out of order.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	events, err := d.store.ListUnpublishedEvents(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("list unpublished events: %w", err)
	}

	published := 0
	for _, ev := range events {
		if err := d.publisher.Publish(ctx, FromLog(ev)); err != nil {
			metrics.IncOutboxPublished("failed")
			return published, fmt.Errorf("publish event %d: %w", ev.ID, err)
		}

		if err := d.store.MarkEventPublished(ctx, ev.ID, d.now()); err != nil {
			// already delivered; subscribers must tolerate the redelivery on the next run
			metrics.IncOutboxPublished("unmarked")
			return published, fmt.Errorf("mark event %d published: %w", ev.ID, err)
		}

		metrics.IncOutboxPublished("ok")
		published++
	}

	return published, nil
}

// Run calls RunOnce at startup and then every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	d.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("outbox dispatcher stopping")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := d.RunOnce(runCtx)
	if err != nil {
		d.log.Error().Err(err).Int("published", n).Msg("outbox run failed")
		return
	}
	if n > 0 {
		d.log.Info().Int("published", n).Dur("took", time.Since(start)).Msg("outbox run complete")
	}
}

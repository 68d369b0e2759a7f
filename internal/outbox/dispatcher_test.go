package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func seedEvents(t *testing.T, repo *appointment.MemoryRepository, types ...string) {
	t.Helper()
	for _, typ := range types {
		id := uuid.New()
		require.NoError(t, repo.InsertEvent(context.Background(), appointment.EventLog{
			EventType:     typ,
			AppointmentID: &id,
			Payload:       []byte(`{"k":"v"}`),
		}))
	}
}

func TestRunOncePublishesAndMarks(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	seedEvents(t, repo, appointment.EventAppointmentCreated, appointment.EventAppointmentConfirmed)

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev Event) bool {
		return ev.Type == appointment.EventAppointmentCreated
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev Event) bool {
		return ev.Type == appointment.EventAppointmentConfirmed
	})).Return(nil).Once()

	d := NewDispatcher(repo, pub, 10, zerolog.Nop())
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	pub.AssertExpectations(t)

	left, err := repo.ListUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	// nothing left to do
	n, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRunOnceStopsAtFirstFailure(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	seedEvents(t, repo, appointment.EventAppointmentCreated, appointment.EventAppointmentCancelled, appointment.EventAppointmentCreated)

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev Event) bool { return ev.ID == 1 })).Return(nil)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev Event) bool { return ev.ID == 2 })).Return(errors.New("broker down"))

	d := NewDispatcher(repo, pub, 10, zerolog.Nop())
	n, err := d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	pub.AssertNumberOfCalls(t, "Publish", 2)

	left, err := repo.ListUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, int64(2), left[0].ID)
}

func TestRunOnceRespectsBatch(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	seedEvents(t, repo, "A", "B", "C")

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(repo, pub, 2, zerolog.Nop())
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := repo.ListUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRedisPublisherSerializesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "appointments.events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	messages := sub.Channel()

	id := uuid.New()
	ev := Event{
		ID:            7,
		Type:          appointment.EventAppointmentConfirmed,
		AppointmentID: &id,
		Payload:       json.RawMessage(`{"consultation_type":"REMOTE"}`),
		OccurredAt:    time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC),
	}

	p := NewRedisPublisher(redisclient.NewPublisher(client, "appointments.events"))
	require.NoError(t, p.Publish(ctx, ev))

	select {
	case msg := <-messages:
		assert.Equal(t, "appointments.events", msg.Channel)
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, ev.Type, got.Type)
		assert.Equal(t, id, *got.AppointmentID)
		assert.JSONEq(t, `{"consultation_type":"REMOTE"}`, string(got.Payload))
		assert.True(t, ev.OccurredAt.Equal(got.OccurredAt))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/mocks"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSender blocks every Send until the gate is opened.
type gatedSender struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	mu      sync.Mutex
	sent    int
}

func newGatedSender() *gatedSender {
	return &gatedSender{gate: make(chan struct{}), started: make(chan struct{})}
}

func (s *gatedSender) Channel() domain.Channel { return domain.ChannelSMS }
func (s *gatedSender) Enabled() bool           { return true }

func (s *gatedSender) Send(ctx context.Context, phone, message string) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *gatedSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func newDispatcher(store *mocks.MemoryStore, cfg DispatcherConfig, senders ...Sender) *Dispatcher {
	log, _ := test.NewNullLogger()
	return NewDispatcher(newPipeline(store, senders...), cfg, log)
}

func TestDispatcher_DeliversQueuedNotifications(t *testing.T) {
	store := mocks.NewMemoryStore()
	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	d := newDispatcher(store, DispatcherConfig{Workers: 3, QueueSize: 16, Attempts: 1}, sms)

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: fmt.Sprintf("m%d", i)}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, sms.Messages(), 5)
	records := store.AllNotifications()
	assert.Len(t, records, 5)
	for _, r := range records {
		assert.True(t, r.Success)
	}
}

func TestDispatcher_RetriesBeforeGivingUp(t *testing.T) {
	store := mocks.NewMemoryStore()
	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	sms.SetFail(errors.New("gateway timeout"))
	d := newDispatcher(store, DispatcherConfig{Workers: 1, QueueSize: 4, Attempts: 3, Backoff: time.Millisecond}, sms)

	require.True(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: "hello", Reference: "R1"}))
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, sms.Messages(), 3)
	records := store.AllNotifications()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.False(t, r.Success)
		assert.Equal(t, i+1, r.Attempts)
		assert.Equal(t, "gateway timeout", r.ErrorMessage)
	}
}

func TestDispatcher_FullQueueLeavesRecordForSweep(t *testing.T) {
	store := mocks.NewMemoryStore()
	sender := newGatedSender()
	d := newDispatcher(store, DispatcherConfig{Workers: 1, QueueSize: 1, Attempts: 1}, sender)

	require.True(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: "first"}))
	<-sender.started

	accepted, deferred := 1, ""
	for i := 0; i < 10; i++ {
		msg := fmt.Sprintf("overflow %d", i)
		if !d.Enqueue(context.Background(), Notification{Phone: phone, Message: msg, Reference: "R9"}) {
			deferred = msg
			break
		}
		accepted++
	}
	require.NotEmpty(t, deferred)

	var pending []domain.NotificationRecord
	for _, r := range store.AllNotifications() {
		if !r.Success {
			pending = append(pending, r)
		}
	}
	require.Len(t, pending, 1)
	assert.Equal(t, deferred, pending[0].Message)
	assert.Equal(t, reasonQueueFull, pending[0].ErrorMessage)
	assert.Equal(t, domain.ChannelSMS, pending[0].Channel)

	close(sender.gate)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, accepted, sender.count())

	result, err := d.pipeline.RetryFailed(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, RetrySweepResult{Scanned: 1, Recovered: 1}, result)
	assert.Equal(t, accepted+1, sender.count())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	store := mocks.NewMemoryStore()
	d := newDispatcher(store, DispatcherConfig{}, mocks.NewRecordingSender(domain.ChannelSMS))

	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: "late"}))

	records := store.AllNotifications()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, "late", records[0].Message)
	assert.Equal(t, reasonClosed, records[0].ErrorMessage)
}

func TestDispatcher_EnqueueWithoutChannelDrops(t *testing.T) {
	store := mocks.NewMemoryStore()
	d := newDispatcher(store, DispatcherConfig{}, mocks.NewMockSender(domain.ChannelSMS, false))

	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: "late"}))
	assert.Empty(t, store.AllNotifications())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	store := mocks.NewMemoryStore()
	sender := newGatedSender()
	d := newDispatcher(store, DispatcherConfig{Workers: 1, QueueSize: 4, Attempts: 1}, sender)

	require.True(t, d.Enqueue(context.Background(), Notification{Phone: phone, Message: "stuck"}))
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sender.count())

	records := store.AllNotifications()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

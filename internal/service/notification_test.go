package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/mocks"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const phone = "+254712345678"

func newPipeline(store *mocks.MemoryStore, senders ...Sender) *Pipeline {
	log, _ := test.NewNullLogger()
	return NewPipeline(store, utils.NewFixedClock(testNow), log, senders...)
}

func TestSendWithFallback(t *testing.T) {
	tests := []struct {
		name            string
		whatsappEnabled bool
		whatsappErr     error
		smsErr          error
		expectWhatsApp  bool
		expectSMS       bool
		expectedOK      bool
		expectedRecords []domain.Channel
		expectedSuccess []bool
	}{
		{
			name:            "whatsapp delivers",
			whatsappEnabled: true,
			expectWhatsApp:  true,
			expectedOK:      true,
			expectedRecords: []domain.Channel{domain.ChannelWhatsApp},
			expectedSuccess: []bool{true},
		},
		{
			name:            "whatsapp fails, sms delivers",
			whatsappEnabled: true,
			whatsappErr:     errors.New("63016: outside session window"),
			expectWhatsApp:  true,
			expectSMS:       true,
			expectedOK:      true,
			expectedRecords: []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS},
			expectedSuccess: []bool{false, true},
		},
		{
			name:            "whatsapp disabled",
			expectSMS:       true,
			expectedOK:      true,
			expectedRecords: []domain.Channel{domain.ChannelSMS},
			expectedSuccess: []bool{true},
		},
		{
			name:            "every channel fails",
			whatsappEnabled: true,
			whatsappErr:     errors.New("whatsapp down"),
			smsErr:          errors.New("sms down"),
			expectWhatsApp:  true,
			expectSMS:       true,
			expectedRecords: []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS},
			expectedSuccess: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMemoryStore()
			whatsapp := mocks.NewMockSender(domain.ChannelWhatsApp, tt.whatsappEnabled)
			sms := mocks.NewMockSender(domain.ChannelSMS, true)
			if tt.expectWhatsApp {
				whatsapp.On("Send", mock.Anything, phone, "hello").Return(tt.whatsappErr)
			}
			if tt.expectSMS {
				sms.On("Send", mock.Anything, phone, "hello").Return(tt.smsErr)
			}

			ok := newPipeline(store, whatsapp, sms).SendWithFallback(context.Background(), phone, "hello")

			assert.Equal(t, tt.expectedOK, ok)
			records := store.AllNotifications()
			require.Len(t, records, len(tt.expectedRecords))
			for i, rec := range records {
				assert.Equal(t, tt.expectedRecords[i], rec.Channel)
				assert.Equal(t, tt.expectedSuccess[i], rec.Success)
				assert.Equal(t, 1, rec.Attempts)
				assert.Equal(t, phone, rec.Phone)
				if rec.Success {
					assert.Empty(t, rec.ErrorMessage)
				} else {
					assert.NotEmpty(t, rec.ErrorMessage)
				}
			}

			whatsapp.AssertExpectations(t)
			sms.AssertExpectations(t)
			if !tt.expectSMS {
				sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSendWithFallback_NoChannel(t *testing.T) {
	store := mocks.NewMemoryStore()
	whatsapp := mocks.NewMockSender(domain.ChannelWhatsApp, false)

	ok := newPipeline(store, whatsapp).SendWithFallback(context.Background(), phone, "hello")

	assert.False(t, ok)
	assert.Empty(t, store.AllNotifications())
}

func TestSendWithFallback_RecordFailureDoesNotHideDelivery(t *testing.T) {
	store := mocks.NewMemoryStore()
	store.FailOn("Notifications.Create", errors.New("insert failed"))
	sms := mocks.NewRecordingSender(domain.ChannelSMS)

	ok := newPipeline(store, sms).SendWithFallback(context.Background(), phone, "hello")

	assert.True(t, ok)
	assert.Len(t, sms.Messages(), 1)
}

func TestSendWithRetry_RecordsEveryPass(t *testing.T) {
	store := mocks.NewMemoryStore()
	sms := mocks.NewMockSender(domain.ChannelSMS, true)
	sms.On("Send", mock.Anything, phone, "hello").Return(errors.New("timeout")).Once()
	sms.On("Send", mock.Anything, phone, "hello").Return(nil).Once()

	backoff := retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	ok := newPipeline(store, sms).SendWithRetry(context.Background(), phone, "hello", backoff)

	assert.True(t, ok)
	records := store.AllNotifications()
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.Equal(t, 1, records[0].Attempts)
	assert.Equal(t, "timeout", records[0].ErrorMessage)
	assert.True(t, records[1].Success)
	assert.Equal(t, 2, records[1].Attempts)
	sms.AssertExpectations(t)
}

func TestSendWithRetry_GivesUpAfterBudget(t *testing.T) {
	store := mocks.NewMemoryStore()
	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	sms.SetFail(errors.New("provider 500"))

	backoff := retry.WithMaxRetries(2, retry.NewExponential(time.Millisecond))
	ok := newPipeline(store, sms).SendWithRetry(context.Background(), phone, "hello", backoff)

	assert.False(t, ok)
	assert.Len(t, sms.Messages(), 3)
	records := store.AllNotifications()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.False(t, r.Success)
		assert.Equal(t, i+1, r.Attempts)
		assert.Equal(t, "provider 500", r.ErrorMessage)
	}
}

func TestRecordUndelivered(t *testing.T) {
	t.Run("first enabled channel", func(t *testing.T) {
		store := mocks.NewMemoryStore()
		whatsapp := mocks.NewMockSender(domain.ChannelWhatsApp, false)
		sms := mocks.NewRecordingSender(domain.ChannelSMS)

		err := newPipeline(store, whatsapp, sms).RecordUndelivered(context.Background(), phone, "hello", "dispatch queue full")

		require.NoError(t, err)
		records := store.AllNotifications()
		require.Len(t, records, 1)
		assert.Equal(t, domain.ChannelSMS, records[0].Channel)
		assert.False(t, records[0].Success)
		assert.Equal(t, "dispatch queue full", records[0].ErrorMessage)
		assert.Equal(t, testNow, records[0].CreatedAt)
		assert.Empty(t, sms.Messages())
	})

	t.Run("no channel", func(t *testing.T) {
		store := mocks.NewMemoryStore()
		err := newPipeline(store).RecordUndelivered(context.Background(), phone, "hello", "dispatch queue full")

		assert.ErrorIs(t, err, ErrNoChannel)
		assert.Empty(t, store.AllNotifications())
	})
}

func TestRetryFailed_SkipsFailureDeliveredLater(t *testing.T) {
	store := mocks.NewMemoryStore()
	store.SeedNotification(domain.NotificationRecord{
		Phone: phone, Channel: domain.ChannelWhatsApp, Message: "receipt R1", Attempts: 1,
		ErrorMessage: "63016", CreatedAt: testNow.Add(-time.Minute),
	})
	store.SeedNotification(domain.NotificationRecord{
		Phone: phone, Channel: domain.ChannelSMS, Message: "receipt R1", Attempts: 1,
		Success: true, CreatedAt: testNow.Add(-time.Minute),
	})
	pending := store.SeedNotification(domain.NotificationRecord{
		Phone: phone, Channel: domain.ChannelSMS, Message: "receipt R2", Attempts: 1,
		ErrorMessage: "timeout", CreatedAt: testNow,
	})

	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	result, err := newPipeline(store, sms).RetryFailed(context.Background(), 50)

	require.NoError(t, err)
	assert.Equal(t, RetrySweepResult{Scanned: 1, Recovered: 1}, result)
	assert.Equal(t, []string{phone + "|receipt R2"}, sms.Messages())
	for _, r := range store.AllNotifications() {
		if r.ID == pending.ID {
			assert.True(t, r.Success)
		}
	}
}

func TestRetryFailed(t *testing.T) {
	store := mocks.NewMemoryStore()
	oldest := store.SeedNotification(domain.NotificationRecord{
		Phone: "+254700000001", Channel: domain.ChannelSMS, Message: "first", Attempts: 1,
		ErrorMessage: "timeout", CreatedAt: testNow.Add(-3 * time.Hour),
	})
	middle := store.SeedNotification(domain.NotificationRecord{
		Phone: "+254700000002", Channel: domain.ChannelWhatsApp, Message: "second", Attempts: 2,
		ErrorMessage: "timeout", CreatedAt: testNow.Add(-2 * time.Hour),
	})
	newest := store.SeedNotification(domain.NotificationRecord{
		Phone: "+254700000003", Channel: domain.ChannelSMS, Message: "third", Attempts: 1,
		ErrorMessage: "timeout", CreatedAt: testNow.Add(-1 * time.Hour),
	})
	store.SeedNotification(domain.NotificationRecord{
		Phone: "+254700000004", Channel: domain.ChannelSMS, Message: "done", Attempts: 1,
		Success: true, CreatedAt: testNow.Add(-4 * time.Hour),
	})

	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	result, err := newPipeline(store, sms).RetryFailed(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, RetrySweepResult{Scanned: 2, Recovered: 2}, result)
	assert.Equal(t, []string{"+254700000001|first", "+254700000002|second"}, sms.Messages())

	records := map[string]domain.NotificationRecord{}
	for _, r := range store.AllNotifications() {
		records[r.ID.String()] = r
	}
	assert.Len(t, records, 4)

	assert.True(t, records[oldest.ID.String()].Success)
	assert.Equal(t, 2, records[oldest.ID.String()].Attempts)
	assert.Empty(t, records[oldest.ID.String()].ErrorMessage)
	assert.Equal(t, 3, records[middle.ID.String()].Attempts)
	assert.False(t, records[newest.ID.String()].Success)
	assert.Equal(t, 1, records[newest.ID.String()].Attempts)
}

func TestRetryFailed_StillFailing(t *testing.T) {
	store := mocks.NewMemoryStore()
	rec := store.SeedNotification(domain.NotificationRecord{
		Phone: phone, Channel: domain.ChannelSMS, Message: "m", Attempts: 1,
		ErrorMessage: "old error", CreatedAt: testNow,
	})

	sms := mocks.NewRecordingSender(domain.ChannelSMS)
	sms.SetFail(errors.New("new error"))

	result, err := newPipeline(store, sms).RetryFailed(context.Background(), 50)

	require.NoError(t, err)
	assert.Equal(t, RetrySweepResult{Scanned: 1}, result)

	records := store.AllNotifications()
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.False(t, records[0].Success)
	assert.Equal(t, 2, records[0].Attempts)
	assert.Equal(t, "new error", records[0].ErrorMessage)
}

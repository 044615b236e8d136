package mocks

import (
	"context"
	"sync"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
	channel domain.Channel
	enabled bool
}

func NewMockSender(channel domain.Channel, enabled bool) *MockSender {
	return &MockSender{channel: channel, enabled: enabled}
}

func (m *MockSender) Channel() domain.Channel { return m.channel }
func (m *MockSender) Enabled() bool           { return m.enabled }

func (m *MockSender) Send(ctx context.Context, phone, message string) error {
	args := m.Called(ctx, phone, message)
	return args.Error(0)
}

// RecordingSender succeeds or fails according to Fail and keeps every
// message it was asked to send.
type RecordingSender struct {
	mu       sync.Mutex
	channel  domain.Channel
	Fail     error
	messages []string
}

func NewRecordingSender(channel domain.Channel) *RecordingSender {
	return &RecordingSender{channel: channel}
}

func (s *RecordingSender) Channel() domain.Channel { return s.channel }
func (s *RecordingSender) Enabled() bool           { return true }

func (s *RecordingSender) Send(ctx context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, phone+"|"+message)
	return s.Fail
}

func (s *RecordingSender) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = err
}

func (s *RecordingSender) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

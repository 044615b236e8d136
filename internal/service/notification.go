package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoChannel    = errors.New("no notification channel enabled")
	errNotDelivered = errors.New("notification not delivered")
)

// Sender is one transport. Enabled is false when the channel is switched
// off or missing credentials; a disabled sender is never attempted.
type Sender interface {
	Channel() domain.Channel
	Enabled() bool
	Send(ctx context.Context, phone, message string) error
}

// Pipeline delivers a message over its senders in priority order and
// stops at the first success.
type Pipeline struct {
	store   repository.Store
	senders []Sender
	clock   utils.Clock
	log     logrus.FieldLogger
}

func NewPipeline(store repository.Store, clock utils.Clock, log logrus.FieldLogger, senders ...Sender) *Pipeline {
	return &Pipeline{
		store:   store,
		senders: senders,
		clock:   clock,
		log:     log,
	}
}

type deliveryAttempt struct {
	channel domain.Channel
	err     error
}

func delivered(attempts []deliveryAttempt) bool {
	return len(attempts) > 0 && attempts[len(attempts)-1].err == nil
}

func lastError(attempts []deliveryAttempt) string {
	if len(attempts) == 0 {
		return ErrNoChannel.Error()
	}
	if err := attempts[len(attempts)-1].err; err != nil {
		return err.Error()
	}
	return ""
}

func (p *Pipeline) deliver(ctx context.Context, phone, message string) []deliveryAttempt {
	var attempts []deliveryAttempt
	for _, s := range p.senders {
		if !s.Enabled() {
			continue
		}

		err := s.Send(ctx, phone, message)
		attempts = append(attempts, deliveryAttempt{channel: s.Channel(), err: err})
		if err == nil {
			break
		}

		p.log.WithFields(logrus.Fields{
			"channel": s.Channel(),
			"error":   err.Error(),
		}).Warn("notification channel failed")
	}
	return attempts
}

// SendWithFallback makes one pass over the channels and records every
// attempt. It reports whether any channel delivered the message.
func (p *Pipeline) SendWithFallback(ctx context.Context, phone, message string) bool {
	attempts := p.deliver(ctx, phone, message)
	p.record(ctx, phone, message, attempts, 1)
	return delivered(attempts)
}

// SendWithRetry repeats the fallback pass under backoff until a channel
// delivers or the backoff stops. Each pass is recorded when it ends, with
// its pass number as the attempt count.
func (p *Pipeline) SendWithRetry(ctx context.Context, phone, message string, backoff retry.Backoff) bool {
	var passes int

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		passes++
		attempts := p.deliver(ctx, phone, message)
		// The caller's context may be finished; the bookkeeping must still land.
		p.record(context.WithoutCancel(ctx), phone, message, attempts, passes)
		if delivered(attempts) {
			return nil
		}
		if len(attempts) == 0 {
			return ErrNoChannel
		}
		return retry.RetryableError(errNotDelivered)
	})

	return err == nil
}

// RecordUndelivered stores a failed record for a message no channel was
// tried for, so the retry sweep picks it up. The record carries the first
// enabled channel.
func (p *Pipeline) RecordUndelivered(ctx context.Context, phone, message, reason string) error {
	channel, ok := p.primaryChannel()
	if !ok {
		return ErrNoChannel
	}

	rec := &domain.NotificationRecord{
		Phone:        phone,
		Channel:      channel,
		Message:      message,
		Attempts:     1,
		ErrorMessage: reason,
		CreatedAt:    p.clock.Now().UTC(),
	}
	if err := p.store.Notifications().Create(ctx, rec); err != nil {
		return fmt.Errorf("record undelivered notification: %w", err)
	}
	return nil
}

func (p *Pipeline) primaryChannel() (domain.Channel, bool) {
	for _, s := range p.senders {
		if s.Enabled() {
			return s.Channel(), true
		}
	}
	return "", false
}

func (p *Pipeline) record(ctx context.Context, phone, message string, attempts []deliveryAttempt, passes int) {
	if len(attempts) == 0 {
		p.log.WithField("phone", phone).Warn(ErrNoChannel.Error())
		return
	}

	for _, a := range attempts {
		rec := &domain.NotificationRecord{
			Phone:     phone,
			Channel:   a.channel,
			Message:   message,
			Success:   a.err == nil,
			Attempts:  passes,
			CreatedAt: p.clock.Now().UTC(),
		}
		if a.err != nil {
			rec.ErrorMessage = a.err.Error()
		}
		if err := p.store.Notifications().Create(ctx, rec); err != nil {
			p.log.WithFields(logrus.Fields{
				"channel": a.channel,
				"error":   err.Error(),
			}).Error("failed to record notification attempt")
		}
	}
}

type RetrySweepResult struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
}

// RetryFailed re-delivers the oldest failed records and updates them in
// place. It never creates records. Failures already followed by a delivery
// of the same message to the same phone are not listed.
func (p *Pipeline) RetryFailed(ctx context.Context, limit int) (RetrySweepResult, error) {
	var result RetrySweepResult

	failures, err := p.store.Notifications().ListFailed(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("list failed notifications: %w", err)
	}

	var errs []error
	for _, rec := range failures {
		result.Scanned++

		attempts := p.deliver(ctx, rec.Phone, rec.Message)
		rec.Attempts++
		rec.Success = delivered(attempts)
		if rec.Success {
			rec.ErrorMessage = ""
			result.Recovered++
		} else {
			rec.ErrorMessage = lastError(attempts)
		}

		if err := p.store.Notifications().UpdateAttempt(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("update notification %s: %w", rec.ID, err))
		}
	}

	p.log.WithFields(logrus.Fields{
		"scanned":   result.Scanned,
		"recovered": result.Recovered,
	}).Info("notification retry sweep finished")

	return result, errors.Join(errs...)
}

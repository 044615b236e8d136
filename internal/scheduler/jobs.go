package scheduler

import (
	"context"

	"github.com/segyhp/microloan-engine/internal/service"

	"github.com/sirupsen/logrus"
)

type ReminderRunner interface {
	RunDueSoon(ctx context.Context) (service.ReminderResult, error)
	RunOverdue(ctx context.Context) (service.ReminderResult, error)
}

type CreditSweeper interface {
	RecomputeAll(ctx context.Context) (service.SweepResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (service.ReconcileResult, error)
}

type RetrySweeper interface {
	RetryFailed(ctx context.Context, limit int) (service.RetrySweepResult, error)
}

type Specs struct {
	DueSoon     string
	Overdue     string
	Credit      string
	Reconcile   string
	NotifyRetry string
}

type JobDeps struct {
	Reminders  ReminderRunner
	Credit     CreditSweeper
	Status     Reconciler
	Pipeline   RetrySweeper
	RetryBatch int
	Log        logrus.FieldLogger
}

// Jobs builds the periodic jobs of the servicing engine.
func Jobs(specs Specs, deps JobDeps) []Job {
	return []Job{
		{
			Name: "due_soon_reminders",
			Spec: specs.DueSoon,
			Run: func(ctx context.Context) error {
				result, err := deps.Reminders.RunDueSoon(ctx)
				deps.Log.WithField("result", result).Info("due-soon reminders run")
				return err
			},
		},
		{
			Name: "overdue_reminders",
			Spec: specs.Overdue,
			Run: func(ctx context.Context) error {
				result, err := deps.Reminders.RunOverdue(ctx)
				deps.Log.WithField("result", result).Info("overdue reminders run")
				return err
			},
		},
		{
			Name: "credit_sweep",
			Spec: specs.Credit,
			Run: func(ctx context.Context) error {
				_, err := deps.Credit.RecomputeAll(ctx)
				return err
			},
		},
		{
			Name: "status_reconcile",
			Spec: specs.Reconcile,
			Run: func(ctx context.Context) error {
				_, err := deps.Status.Reconcile(ctx)
				return err
			},
		},
		{
			Name: "notification_retry",
			Spec: specs.NotifyRetry,
			Run: func(ctx context.Context) error {
				_, err := deps.Pipeline.RetryFailed(ctx, deps.RetryBatch)
				return err
			},
		},
	}
}

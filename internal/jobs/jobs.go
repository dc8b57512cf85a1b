package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"flariki/internal/config"
	"flariki/internal/models"
)

type reminderSender interface {
	SendWeekly(ctx context.Context) (int, error)
}

type reconciler interface {
	Reconcile(ctx context.Context) ([]models.BalanceMismatch, error)
}

type backupRunner interface {
	Run(ctx context.Context) error
}

// Register wires the periodic jobs of the API process.
func Register(s *Scheduler, cfg *config.Config, reminders reminderSender, ledger reconciler, backups backupRunner, logger *zerolog.Logger) error {
	jobs := []Job{
		{
			Name:     "weekly_reminders",
			Schedule: cfg.Jobs.ReminderSchedule,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := reminders.SendWeekly(ctx)
				if err != nil {
					return err
				}
				logger.Info().Int("reminders", n).Msg("weekly reminders queued")
				return nil
			},
		},
		{
			Name:     "ledger_reconcile",
			Schedule: cfg.Jobs.ReconcileSchedule,
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) error {
				mismatches, err := ledger.Reconcile(ctx)
				if err != nil {
					return err
				}
				if len(mismatches) > 0 {
					logger.Warn().Int("mismatches", len(mismatches)).Msg("ledger reconciliation found mismatches")
				}
				return nil
			},
		},
	}

	if cfg.Backup.Enabled && backups != nil {
		jobs = append(jobs, Job{
			Name:     "database_backup",
			Schedule: cfg.Backup.Schedule,
			Timeout:  30 * time.Minute,
			Run:      backups.Run,
		})
	}

	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}

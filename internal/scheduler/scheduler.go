package scheduler

import (
	"context"

	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/config"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic billing sweeps: automatic invoice generation,
// overdue detection, failed-payment retry and subscription expiry. Sweeps run
// without a tenant context and are safe to overlap with interactive traffic;
// conflicting writes lose on conditional updates and are retried on the next
// tick.
type Scheduler struct {
	cron          *cron.Cron
	cfg           config.SchedulerConfig
	subscriptions *service.SubscriptionService
	invoices      *service.InvoiceService
	payments      *service.PaymentService
}

func New(cfg config.SchedulerConfig, subscriptions *service.SubscriptionService, invoices *service.InvoiceService, payments *service.PaymentService) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		cfg:           cfg,
		subscriptions: subscriptions,
		invoices:      invoices,
		payments:      payments,
	}
}

// Start registers the sweep jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	log := logger.GetLogger()

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) (int, error)
	}{
		{"invoice_generation", s.cfg.InvoiceSchedule, s.invoices.GenerateAutomaticInvoices},
		{"overdue_detection", s.cfg.OverdueSchedule, s.invoices.ProcessOverdue},
		{"payment_retry", s.cfg.PaymentRetrySchedule, s.payments.RetryFailedPayments},
		{"subscription_expiry", s.cfg.ExpirySchedule, s.subscriptions.ProcessExpired},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() {
			ctx := logger.WithContext(context.Background(),
				logger.GetLogger().With(zap.String("sweep", job.name)))

			processed, err := job.run(ctx)
			if err != nil {
				log.Error("Sweep failed",
					zap.String("sweep", job.name),
					zap.Error(err))
				return
			}
			log.Info("Sweep completed",
				zap.String("sweep", job.name),
				zap.Int("processed", processed))
		})
		if err != nil {
			return err
		}
		log.Info("Sweep scheduled",
			zap.String("sweep", job.name),
			zap.String("schedule", job.schedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

package automation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs scanners on a fixed cadence so feed reads only merge
// already computed alerts.
type Scheduler struct {
	interval time.Duration
	scanners []Scanner
	log      logrus.FieldLogger
}

func NewScheduler(interval time.Duration, log logrus.FieldLogger, scanners ...Scanner) *Scheduler {
	return &Scheduler{interval: interval, scanners: scanners, log: log}
}

// Run scans once immediately and then every interval until ctx is done.
// A non-positive interval disables scheduling and Run returns at once.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("scan scheduler disabled")
		return nil
	}
	s.log.WithField("interval", s.interval.String()).Info("scan scheduler started")
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scan scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every scanner, logging failures.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, scanner := range s.scanners {
		start := time.Now()
		report, err := scanner.Check(ctx)
		log := s.log.WithFields(logrus.Fields{
			"scanner":  scanner.Name(),
			"duration": time.Since(start).String(),
		})
		if err != nil {
			log.WithError(err).Error("scan failed")
			continue
		}
		log.WithFields(logrus.Fields{
			"evaluated": report.Evaluated,
			"alerts":    report.AlertsRaised,
			"suspended": report.Suspended,
		}).Info("scan completed")
	}
}

package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

const (
	lowSafetyScore        = 75
	lowCompletionRate     = 80
	disciplineMinTrips    = 5
	warningsForSuspension = 3
)

// ScanReport summarises one scanner run.
type ScanReport struct {
	Evaluated    int `json:"evaluated"`
	AlertsRaised int `json:"alerts_raised"`
	Suspended    int `json:"suspended"`
	Warned       int `json:"warned"`
}

// Scanner is a periodic check that raises alerts for conditions that arise
// from the passage of time rather than from a mutation.
type Scanner interface {
	Name() string
	Check(ctx context.Context) (ScanReport, error)
}

// ComplianceMonitor enforces licence validity, safety score and
// progressive discipline over all drivers that are not Banned.
type ComplianceMonitor struct {
	base
	alerts *AlertFeed
}

func (m *ComplianceMonitor) Name() string { return "compliance" }

// Check evaluates every non-Banned driver. Each qualifying run adds one
// warning to drivers that meet the discipline condition, so it should run
// on a fixed cadence. Per-driver failures are collected and the scan goes on.
func (m *ComplianceMonitor) Check(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	drivers, err := m.store.FindDrivers(ctx, db.DriverFilter{ExcludeStatuses: []models.DriverStatus{models.DriverBanned}})
	if err != nil {
		return report, m.fail("listing drivers", err, nil)
	}
	now := m.now()
	var errs []error
	for i := range drivers {
		report.Evaluated++
		if err := m.evaluate(ctx, &drivers[i], now, &report); err != nil {
			errs = append(errs, err)
		}
	}
	m.log.WithFields(logrus.Fields{
		"evaluated": report.Evaluated,
		"alerts":    report.AlertsRaised,
		"suspended": report.Suspended,
		"warned":    report.Warned,
	}).Debug("compliance scan finished")
	return report, errors.Join(errs...)
}

func (m *ComplianceMonitor) evaluate(ctx context.Context, d *models.Driver, now time.Time, report *ScanReport) error {
	id := d.ID.Hex()

	if d.LicenseExpired(now) && d.Status != models.DriverSuspended {
		suspended, err := m.suspendExpired(ctx, d)
		if err != nil {
			return err
		}
		if suspended {
			report.Suspended++
			report.AlertsRaised++
		}
	}

	if d.SafetyScorePct < lowSafetyScore && d.Status != models.DriverSuspended {
		if m.alerts.raiseOnce(ctx, AlertSpec{
			Kind:       models.AlertLowSafetyScore,
			Title:      "Low Safety Score",
			Message:    fmt.Sprintf("%s safety score is critically low: %s%%", d.Name, kg(d.SafetyScorePct)),
			Severity:   models.SeverityWarning,
			EntityType: models.EntityDriver,
			EntityID:   id,
		}) {
			report.AlertsRaised++
		}
	}

	if !m.underperforming(d) {
		return nil
	}
	updated, err := m.store.IncrementDriverCounters(ctx, id, db.DriverCounters{Warnings: 1})
	if err != nil {
		return m.fail("adding driver warning", err, logrus.Fields{"driver_id": id})
	}
	report.Warned++
	if updated.Warnings < warningsForSuspension {
		return nil
	}
	err = m.store.UpdateDriverStatus(ctx, id, []models.DriverStatus{models.DriverOnDuty, models.DriverOffDuty}, models.DriverSuspended)
	if errors.Is(err, db.ErrConflict) {
		return nil
	}
	if err != nil {
		return m.fail("suspending driver", err, logrus.Fields{"driver_id": id})
	}
	d.Status = models.DriverSuspended
	report.Suspended++
	m.log.WithFields(logrus.Fields{"driver_id": id, "warnings": updated.Warnings}).Info("driver suspended after repeated warnings")
	if m.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertDisciplineSuspension,
		Title:      "Driver Suspended (3 warnings)",
		Message:    fmt.Sprintf("%s has been suspended after %d performance warnings.", d.Name, updated.Warnings),
		Severity:   models.SeverityCritical,
		EntityType: models.EntityDriver,
		EntityID:   id,
	}) {
		report.AlertsRaised++
	}
	return nil
}

// underperforming reports whether the discipline rule applies to d.
func (m *ComplianceMonitor) underperforming(d *models.Driver) bool {
	if d.Status == models.DriverSuspended || d.Status == models.DriverBanned {
		return false
	}
	if d.TotalTripsAssigned < disciplineMinTrips {
		return false
	}
	return d.CompletionRate() < lowCompletionRate || d.SafetyScorePct < lowSafetyScore
}

// suspendExpired suspends a driver whose licence has expired and raises the
// deduplicated expiry alert. It reports whether this call did the
// suspension; a driver already Suspended or Banned is left alone.
func (m *ComplianceMonitor) suspendExpired(ctx context.Context, d *models.Driver) (bool, error) {
	if d.Status == models.DriverSuspended || d.Status == models.DriverBanned {
		return false, nil
	}
	id := d.ID.Hex()
	err := m.store.UpdateDriverStatus(ctx, id, []models.DriverStatus{models.DriverOnDuty, models.DriverOffDuty}, models.DriverSuspended)
	if errors.Is(err, db.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, m.fail("suspending driver", err, logrus.Fields{"driver_id": id})
	}
	d.Status = models.DriverSuspended
	m.log.WithField("driver_id", id).Info("driver suspended for expired licence")
	m.alerts.raiseOnce(ctx, AlertSpec{
		Kind:       models.AlertLicenseExpired,
		Title:      "Driver License Expired",
		Message:    fmt.Sprintf("Driver %s's license expired on %s and has been suspended.", d.Name, d.LicenseExpiryDate.Format(time.DateOnly)),
		Severity:   models.SeverityWarning,
		EntityType: models.EntityDriver,
		EntityID:   id,
	})
	return true, nil
}

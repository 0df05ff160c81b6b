package automation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// DueDetector raises a warning when a vehicle has outrun the service
// interval of a policy, measured from its last completed service of that
// type.
type DueDetector struct {
	base
	alerts   *AlertFeed
	policies map[models.ServiceType]models.DuePolicy
}

func (d *DueDetector) Name() string { return "maintenance_due" }

// Check evaluates every non-Retired vehicle against every policy. At most one
// unresolved alert exists per vehicle and service type.
func (d *DueDetector) Check(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	vehicles, err := d.store.FindVehicles(ctx, db.VehicleFilter{ExcludeStatuses: []models.VehicleStatus{models.VehicleRetired}})
	if err != nil {
		return report, d.fail("listing vehicles", err, nil)
	}
	services := make([]models.ServiceType, 0, len(d.policies))
	for s := range d.policies {
		services = append(services, s)
	}
	slices.Sort(services)

	now := d.now()
	var errs []error
	for _, v := range vehicles {
		report.Evaluated++
		id := v.ID.Hex()
		for _, service := range services {
			last, err := d.store.FindMaintenance(ctx, db.MaintenanceFilter{
				Vehicle:     id,
				Statuses:    []models.MaintenanceStatus{models.MaintenanceCompleted},
				ServiceType: service,
				Limit:       1,
			})
			if err != nil {
				errs = append(errs, d.fail("reading service history", err, logrus.Fields{"vehicle_id": id, "service_type": service}))
				continue
			}
			var previous *models.Maintenance
			if len(last) > 0 {
				previous = &last[0]
			}
			reason, due := d.policies[service].Due(service, v.OdometerKm, previous, now)
			if !due {
				continue
			}
			if d.alerts.raiseOnce(ctx, AlertSpec{
				Kind:       models.AlertMaintenanceDue,
				Title:      "Maintenance Due",
				Message:    fmt.Sprintf("Vehicle %s: %s due (%s).", v.LicensePlate, service, reason),
				Severity:   models.SeverityWarning,
				EntityType: models.EntityVehicle,
				EntityID:   id,
				Qualifier:  string(service),
			}) {
				report.AlertsRaised++
			}
		}
	}
	d.log.WithFields(logrus.Fields{"evaluated": report.Evaluated, "alerts": report.AlertsRaised}).Debug("maintenance due scan finished")
	return report, errors.Join(errs...)
}

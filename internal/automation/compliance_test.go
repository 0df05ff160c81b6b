package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

func TestCompliance_ExpiredLicenseSuspendsOnce(t *testing.T) {
	f := newFixture(t)
	d := f.driver("Asha", "DL-1")
	f.expireLicense(d, testNow.AddDate(0, -1, 0))

	report, err := f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.Suspended)
	assert.Equal(t, models.DriverSuspended, f.reloadDriver(d).Status)

	alerts := f.alerts(models.AlertLicenseExpired)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Driver License Expired", alerts[0].Title)
	assert.Equal(t, "Driver Asha's license expired on 2026-02-10 and has been suspended.", alerts[0].Message)
	assert.Equal(t, models.SeverityWarning, alerts[0].Severity)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Compliance.Check(f.ctx)
		require.NoError(t, err)
	}
	assert.Len(t, f.alerts(models.AlertLicenseExpired), 1)
}

func TestCompliance_LowSafetyScoreIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	d := f.driver("Asha", "DL-1")
	_, err := f.engine.Roster.UpdateDriverProfile(f.ctx, d.ID.Hex(), db.DriverProfile{SafetyScorePct: ptr(70.0)})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Compliance.Check(f.ctx)
		require.NoError(t, err)
	}
	alerts := f.alerts(models.AlertLowSafetyScore)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Asha safety score is critically low: 70%", alerts[0].Message)

	_, err = f.engine.ResolveAlert(f.ctx, alerts[0].ID.Hex(), "reviewed")
	require.NoError(t, err)
	_, err = f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Len(t, f.alerts(models.AlertLowSafetyScore), 2, "a resolved alert does not suppress a new one")
}

func TestCompliance_ProgressiveDiscipline(t *testing.T) {
	f := newFixture(t)
	d := f.driver("Asha", "DL-1")
	_, err := f.mem.IncrementDriverCounters(f.ctx, d.ID.Hex(), db.DriverCounters{TotalTripsAssigned: 5, TripsCompleted: 3})
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		report, err := f.engine.Compliance.Check(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Warned)
		driver := f.reloadDriver(d)
		assert.Equal(t, want, driver.Warnings)
		assert.Equal(t, models.DriverOnDuty, driver.Status)
	}

	report, err := f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Suspended)
	driver := f.reloadDriver(d)
	assert.Equal(t, 3, driver.Warnings)
	assert.Equal(t, models.DriverSuspended, driver.Status)

	alerts := f.alerts(models.AlertDisciplineSuspension)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "Asha has been suspended after 3 performance warnings.", alerts[0].Message)

	_, err = f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.reloadDriver(d).Warnings, "suspended drivers are not warned again")
	assert.Len(t, f.alerts(models.AlertDisciplineSuspension), 1)
}

func TestCompliance_DisciplineNeedsFiveTrips(t *testing.T) {
	f := newFixture(t)
	d := f.driver("Asha", "DL-1")
	_, err := f.mem.IncrementDriverCounters(f.ctx, d.ID.Hex(), db.DriverCounters{TotalTripsAssigned: 4})
	require.NoError(t, err)

	report, err := f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Warned)
	assert.Zero(t, f.reloadDriver(d).Warnings)

	// A good record at five trips is not warned either.
	_, err = f.mem.IncrementDriverCounters(f.ctx, d.ID.Hex(), db.DriverCounters{TotalTripsAssigned: 1, TripsCompleted: 5})
	require.NoError(t, err)
	report, err = f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Warned)
}

func TestCompliance_SkipsBannedDrivers(t *testing.T) {
	f := newFixture(t)
	d := f.driver("Asha", "DL-1")
	f.expireLicense(d, testNow.AddDate(0, 0, -1))
	_, err := f.engine.BanDriver(f.ctx, d.ID.Hex())
	require.NoError(t, err)

	report, err := f.engine.Compliance.Check(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
	assert.Equal(t, models.DriverBanned, f.reloadDriver(d).Status)
	assert.Empty(t, f.alerts(models.AlertLicenseExpired))
}

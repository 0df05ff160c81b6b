package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/automation"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// FleetHandler exposes the automation engine over HTTP. Handlers decode,
// call the engine and encode; they hold no rules of their own.
type FleetHandler struct {
	engine *automation.Engine
	log    logrus.FieldLogger
}

// NewFleetHandler creates a handler around engine.
func NewFleetHandler(engine *automation.Engine, log logrus.FieldLogger) *FleetHandler {
	return &FleetHandler{engine: engine, log: log}
}

func (h *FleetHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, h.log.WithField("path", r.URL.Path), err)
}

// Trips

func (h *FleetHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		respondFail(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	q := r.URL.Query()
	filter := db.TripFilter{Vehicle: q.Get("vehicle"), Driver: q.Get("driver"), Limit: limit}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.TripStatus(s))
	}
	trips, err := h.engine.Trips.ListTrips(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trips, "")
}

func (h *FleetHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.engine.Trips.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trip, "")
}

// ValidateTrip returns the validation messages for a draft without
// storing it.
func (h *FleetHandler) ValidateTrip(w http.ResponseWriter, r *http.Request) {
	var draft automation.TripDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	errs, err := h.engine.ValidateTrip(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: len(errs) == 0, Errors: errs})
}

func (h *FleetHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var draft automation.TripDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	trip, err := h.engine.CreateTrip(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, trip, "Trip created.")
}

func (h *FleetHandler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	var patch automation.TripPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	trip, err := h.engine.UpdateTrip(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trip, "Trip updated.")
}

func (h *FleetHandler) DispatchTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.engine.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trip, "Trip dispatched.")
}

func (h *FleetHandler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.engine.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trip, "Trip completed.")
}

func (h *FleetHandler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, trip, "Trip cancelled.")
}

func (h *FleetHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTrip(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil, "Trip deleted.")
}

// Maintenance

func (h *FleetHandler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		respondFail(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	q := r.URL.Query()
	filter := db.MaintenanceFilter{
		Vehicle:     q.Get("vehicle"),
		ServiceType: models.ServiceType(q.Get("service_type")),
		Limit:       limit,
	}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.MaintenanceStatus(s))
	}
	records, err := h.engine.Vehicles.ListMaintenance(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, records, "")
}

func (h *FleetHandler) OpenMaintenance(w http.ResponseWriter, r *http.Request) {
	var draft automation.MaintenanceDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	record, err := h.engine.OpenMaintenance(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, record, "Maintenance record created.")
}

func (h *FleetHandler) CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	record, err := h.engine.CompleteMaintenance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, record, "Maintenance completed.")
}

func (h *FleetHandler) DeleteMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteMaintenance(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil, "Maintenance record deleted.")
}

// Alerts

func (h *FleetHandler) AlertFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.engine.GetFeed(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, feed, "")
}

type alertPage struct {
	Alerts []models.Alert `json:"alerts"`
	Total  int64          `json:"total"`
}

func (h *FleetHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit")
	skip, okSkip := queryInt(r, "skip")
	resolved, okResolved := queryBool(r, "resolved")
	if !okLimit || !okSkip || !okResolved {
		respondFail(w, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	q := r.URL.Query()
	filter := db.AlertFilter{
		Resolved:   resolved,
		Severity:   models.Severity(q.Get("severity")),
		EntityType: models.EntityType(q.Get("entity_type")),
		EntityID:   q.Get("entity_id"),
		Kind:       models.AlertKind(q.Get("kind")),
		Skip:       skip,
		Limit:      limit,
	}
	alerts, total, err := h.engine.ListAlerts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, alertPage{Alerts: alerts, Total: total}, "")
}

func (h *FleetHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	alert, err := h.engine.ResolveAlert(r.Context(), chi.URLParam(r, "id"), body.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, alert, "Alert resolved.")
}

func (h *FleetHandler) UnresolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.UnresolveAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, alert, "Alert reopened.")
}

// RunScans runs the compliance and maintenance-due checks on demand.
func (h *FleetHandler) RunScans(w http.ResponseWriter, r *http.Request) {
	reports, err := h.engine.RunScans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, reports, "Scans completed.")
}

// Drivers

func (h *FleetHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("eligible") == "true" {
		drivers, err := h.engine.Roster.EligibleDrivers(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondOK(w, http.StatusOK, drivers, "")
		return
	}
	var filter db.DriverFilter
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.DriverStatus(s))
	}
	drivers, err := h.engine.Roster.ListDrivers(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, drivers, "")
}

func (h *FleetHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	driver, err := h.engine.Roster.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, driver, "")
}

func (h *FleetHandler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	var draft automation.DriverDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	driver, err := h.engine.RegisterDriver(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, driver, "Driver registered.")
}

func (h *FleetHandler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	var profile db.DriverProfile
	if !decodeJSON(w, r, &profile) {
		return
	}
	driver, err := h.engine.Roster.UpdateDriverProfile(r.Context(), chi.URLParam(r, "id"), profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, driver, "Driver updated.")
}

func (h *FleetHandler) driverAction(w http.ResponseWriter, r *http.Request, message string, action func(*http.Request, string) (*models.Driver, error)) {
	driver, err := action(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, driver, message)
}

func (h *FleetHandler) DriverOnDuty(w http.ResponseWriter, r *http.Request) {
	h.driverAction(w, r, "Driver is on duty.", func(r *http.Request, id string) (*models.Driver, error) {
		return h.engine.Roster.SetDuty(r.Context(), id, true)
	})
}

func (h *FleetHandler) DriverOffDuty(w http.ResponseWriter, r *http.Request) {
	h.driverAction(w, r, "Driver is off duty.", func(r *http.Request, id string) (*models.Driver, error) {
		return h.engine.Roster.SetDuty(r.Context(), id, false)
	})
}

func (h *FleetHandler) SuspendDriver(w http.ResponseWriter, r *http.Request) {
	h.driverAction(w, r, "Driver suspended.", func(r *http.Request, id string) (*models.Driver, error) {
		return h.engine.SuspendDriver(r.Context(), id)
	})
}

func (h *FleetHandler) BanDriver(w http.ResponseWriter, r *http.Request) {
	h.driverAction(w, r, "Driver banned.", func(r *http.Request, id string) (*models.Driver, error) {
		return h.engine.BanDriver(r.Context(), id)
	})
}

func (h *FleetHandler) ReinstateDriver(w http.ResponseWriter, r *http.Request) {
	h.driverAction(w, r, "Driver reinstated.", func(r *http.Request, id string) (*models.Driver, error) {
		return h.engine.ReinstateDriver(r.Context(), id)
	})
}

func (h *FleetHandler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteDriver(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil, "Driver deleted.")
}

// Vehicles

func (h *FleetHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.VehicleFilter{Type: models.VehicleType(q.Get("type"))}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.VehicleStatus(s))
	}
	vehicles, err := h.engine.Roster.ListVehicles(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, vehicles, "")
}

func (h *FleetHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.engine.Roster.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, vehicle, "")
}

func (h *FleetHandler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var draft automation.VehicleDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	vehicle, err := h.engine.RegisterVehicle(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, vehicle, "Vehicle registered.")
}

func (h *FleetHandler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var details db.VehicleDetails
	if !decodeJSON(w, r, &details) {
		return
	}
	vehicle, err := h.engine.Roster.UpdateVehicle(r.Context(), chi.URLParam(r, "id"), details)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, vehicle, "Vehicle updated.")
}

func (h *FleetHandler) RetireVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.engine.Roster.RetireVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, vehicle, "Vehicle retired.")
}

func (h *FleetHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteVehicle(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil, "Vehicle deleted.")
}

// Expenses

func (h *FleetHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		respondFail(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	q := r.URL.Query()
	expenses, err := h.engine.Expenses.ListExpenses(r.Context(), db.ExpenseFilter{Trip: q.Get("trip"), Vehicle: q.Get("vehicle"), Limit: limit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, expenses, "")
}

func (h *FleetHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var draft automation.ExpenseDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	expense, err := h.engine.RecordExpense(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, expense, "Expense recorded.")
}

func (h *FleetHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.engine.Expenses.GetExpense(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, expense, "")
}

func (h *FleetHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil, "Expense deleted.")
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}, "")
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

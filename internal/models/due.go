package models

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DuePolicy is the interval after which a service type is overdue.
type DuePolicy struct {
	KmInterval    float64 `yaml:"km_interval" json:"km_interval"`
	MonthInterval int     `yaml:"month_interval" json:"month_interval"`
}

// DefaultDuePolicies is the built-in service interval table.
var DefaultDuePolicies = map[ServiceType]DuePolicy{
	ServiceOilChange:         {KmInterval: 5000, MonthInterval: 3},
	ServiceTireReplacement:   {KmInterval: 10000, MonthInterval: 6},
	ServiceGeneralService:    {KmInterval: 10000, MonthInterval: 6},
	ServiceGeneralInspection: {KmInterval: 10000, MonthInterval: 6},
	ServiceEngineRepair:      {KmInterval: 15000, MonthInterval: 12},
	ServiceBrakeService:      {KmInterval: 8000, MonthInterval: 4},
}

var numberPrinter = message.NewPrinter(language.English)

// Due reports whether service is due for a vehicle at odometer, given the
// most recent completed record of that service (nil when none exists).
// The reason is a short human-readable explanation.
func (p DuePolicy) Due(service ServiceType, odometer float64, last *Maintenance, now time.Time) (string, bool) {
	if last == nil {
		if p.KmInterval > 0 && odometer >= p.KmInterval {
			return numberPrinter.Sprintf("%.0f km with no %s record", odometer, service), true
		}
		return "", false
	}

	if kmSince := odometer - last.OdometerAtService; p.KmInterval > 0 && kmSince >= p.KmInterval {
		return numberPrinter.Sprintf("%.0f km driven since last %s", kmSince, service), true
	}
	if p.MonthInterval > 0 && !now.Before(last.ServiceDate.AddDate(0, p.MonthInterval, 0)) {
		return numberPrinter.Sprintf("%d months since last %s", monthsBetween(last.ServiceDate, now), service), true
	}
	return "", false
}

// monthsBetween counts whole calendar months from a to b.
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return months
}

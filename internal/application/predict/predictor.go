// Package predict derives the per-trip readout: ETA, remaining distance,
// fuel at arrival, on-time status, and prioritized advisories. Pure
// functions over a snapshot, no state.
package predict

import (
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

const (
	// DefaultSpeedKmh matches the motion engine's cruising speed.
	DefaultSpeedKmh = 60.0

	// Fuel burn in percent per 10 km, matching the motion engine.
	DefaultFuelLoadedPer10Km = 0.4
	DefaultFuelEmptyPer10Km  = 0.3

	// lowFuelArrivalPercent triggers the refuel advisory.
	lowFuelArrivalPercent = 10.0
)

// On-time statuses.
const (
	StatusOnTime  = "on-time"
	StatusDelayed = "delayed"
)

// Recommendation is one prioritized advisory for a trip.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

// TripPrediction is the derived readout for one active trip.
type TripPrediction struct {
	TripID               string           `json:"trip_id"`
	VehicleID            string           `json:"vehicle_id"`
	LoadID               string           `json:"load_id"`
	Phase                trip.Phase       `json:"phase"`
	ProgressPercent      float64          `json:"current_progress"`
	RemainingKm          float64          `json:"remaining_distance_km"`
	SpeedKmh             float64          `json:"current_speed_kmh"`
	EtaHours             float64          `json:"eta_hours"`
	EtaAt                time.Time        `json:"eta_timestamp"`
	FuelAtArrivalPercent float64          `json:"fuel_at_arrival_percent"`
	OnTimeStatus         string           `json:"on_time_status"`
	Recommendations      []Recommendation `json:"recommendations"`
}

// Predictor derives trip predictions from snapshots.
type Predictor struct {
	speedKmh          float64
	fuelLoadedPer10Km float64
	fuelEmptyPer10Km  float64
}

// New creates a predictor with default tuning.
func New() *Predictor {
	return &Predictor{
		speedKmh:          DefaultSpeedKmh,
		fuelLoadedPer10Km: DefaultFuelLoadedPer10Km,
		fuelEmptyPer10Km:  DefaultFuelEmptyPer10Km,
	}
}

// SetTuning overrides the prediction parameters. Zero values keep defaults.
func (p *Predictor) SetTuning(speedKmh, fuelLoadedPer10Km, fuelEmptyPer10Km float64) {
	if speedKmh > 0 {
		p.speedKmh = speedKmh
	}
	if fuelLoadedPer10Km > 0 {
		p.fuelLoadedPer10Km = fuelLoadedPer10Km
	}
	if fuelEmptyPer10Km > 0 {
		p.fuelEmptyPer10Km = fuelEmptyPer10Km
	}
}

// Predict derives one prediction per active trip, in trip-id order.
func (p *Predictor) Predict(snapshot *state.Snapshot, now time.Time) []TripPrediction {
	var out []TripPrediction
	for _, t := range snapshot.ActiveTrips() {
		out = append(out, p.predictTrip(snapshot, t, now))
	}
	return out
}

func (p *Predictor) predictTrip(snapshot *state.Snapshot, t *trip.Trip, now time.Time) TripPrediction {
	remainingKm := (1 - t.ProgressPercent/100) * t.RouteTotalKm

	speed := p.speedKmh * trafficFactor(snapshot, t.VehicleID)
	etaHours := 0.0
	if remainingKm > 0 && speed > 0 {
		etaHours = remainingKm / speed
	}
	etaHours += t.DelayMinutes / 60

	pred := TripPrediction{
		TripID:          t.ID,
		VehicleID:       t.VehicleID,
		LoadID:          t.LoadID,
		Phase:           t.Phase,
		ProgressPercent: t.ProgressPercent,
		RemainingKm:     remainingKm,
		SpeedKmh:        speed,
		EtaHours:        etaHours,
		EtaAt:           now.Add(time.Duration(etaHours * float64(time.Hour))),
		OnTimeStatus:    StatusOnTime,
	}

	fuelRate := p.fuelEmptyPer10Km
	if t.Phase == trip.PhaseInTransit {
		fuelRate = p.fuelLoadedPer10Km
	}

	v := snapshot.Vehicles[t.VehicleID]
	hoursRemaining := 0.0
	if v != nil {
		pred.FuelAtArrivalPercent = v.FuelLevelPercent - remainingKm*fuelRate/10
		if pred.FuelAtArrivalPercent < 0 {
			pred.FuelAtArrivalPercent = 0
		}
		hoursRemaining = v.MaxDrivingHoursRemaining
	}

	if l := snapshot.Loads[t.LoadID]; l != nil && !l.DeliveryDeadline.IsZero() && pred.EtaAt.After(l.DeliveryDeadline) {
		pred.OnTimeStatus = StatusDelayed
	}

	pred.Recommendations = recommend(pred, hoursRemaining)
	return pred
}

// trafficFactor scales speed down under the latest traffic alert for the
// vehicle: a 60 minute delay halves effective speed. No alert means 1.0.
func trafficFactor(snapshot *state.Snapshot, vehicleID string) float64 {
	for _, e := range snapshot.EventsFor(event.TypeTrafficAlert, 0) {
		alert := e.Payload.(event.TrafficAlert)
		if alert.VehicleID != vehicleID {
			continue
		}
		return 60 / (60 + alert.DelayMinutes)
	}
	return 1.0
}

// recommend emits advisories in priority order: refuel, rest, delay
// notification, then on-track when nothing else applies.
func recommend(pred TripPrediction, hoursRemaining float64) []Recommendation {
	var recs []Recommendation
	if pred.FuelAtArrivalPercent < lowFuelArrivalPercent {
		recs = append(recs, Recommendation{
			Type:     "refuel",
			Priority: "high",
			Message:  "Fuel will run low before arrival. Plan a refueling stop.",
		})
	}
	if hoursRemaining < pred.EtaHours {
		recs = append(recs, Recommendation{
			Type:     "rest",
			Priority: "high",
			Message:  "Driver hours run out before arrival. Schedule a rest break.",
		})
	}
	if pred.OnTimeStatus == StatusDelayed {
		recs = append(recs, Recommendation{
			Type:     "delay-notification",
			Priority: "normal",
			Message:  "Delivery is projected past its deadline. Notify the customer.",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Type:     "on-track",
			Priority: "normal",
			Message:  "Trip is on schedule.",
		})
	}
	return recs
}

// Package event defines the closed event vocabulary of the dispatch engine.
// Payloads are a tagged variant over the type enumeration, so emission and
// parsing are total: there is no open dictionary to mistype.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// Type enumerates every event the engine can record.
type Type string

const (
	TypeVehiclePositionUpdate Type = "vehicle_position_update"
	TypeLoadPosted            Type = "load_posted"
	TypeLoadMatched           Type = "load_matched"
	TypeTripStarted           Type = "trip_started"
	TypeTripCompleted         Type = "trip_completed"
	TypeTrafficAlert          Type = "traffic_alert"
	TypeDeliveryDelay         Type = "delivery_delay"
	TypeFuelLow               Type = "fuel_low"
	TypeMaintenanceRequired   Type = "maintenance_required"
	TypeNewLoadPosted         Type = "new_load_posted"
	TypeDriverRestRequired    Type = "driver_rest_required"
	TypeRouteDecision         Type = "route_decision"
	TypeInternalError         Type = "internal_error"
)

// Payload is the typed body of an event. Exactly one concrete type exists
// per Type.
type Payload interface {
	EventType() Type
}

// VehiclePositionUpdate reports a GPS fix for a vehicle.
type VehiclePositionUpdate struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

func (VehiclePositionUpdate) EventType() Type { return TypeVehiclePositionUpdate }

// LoadPosted announces a load entering the board.
type LoadPosted struct {
	LoadID      string  `json:"load_id"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	WeightTons  float64 `json:"weight"`
	RatePerKm   float64 `json:"rate"`
}

func (LoadPosted) EventType() Type { return TypeLoadPosted }

// LoadMatched records a load being assigned to a vehicle.
type LoadMatched struct {
	LoadID    string `json:"load_id"`
	VehicleID string `json:"vehicle_id"`
}

func (LoadMatched) EventType() Type { return TypeLoadMatched }

// TripStarted records a new trip entering the store.
type TripStarted struct {
	TripID    string `json:"trip_id"`
	VehicleID string `json:"vehicle_id"`
	LoadID    string `json:"load_id"`
}

func (TripStarted) EventType() Type { return TypeTripStarted }

// TripCompleted records a trip reaching its destination.
type TripCompleted struct {
	TripID string `json:"trip_id"`
}

func (TripCompleted) EventType() Type { return TypeTripCompleted }

// TrafficAlert reports a delay on a highway corridor, optionally pinned to
// a vehicle whose route crosses it.
type TrafficAlert struct {
	VehicleID    string  `json:"vehicle_id,omitempty"`
	Corridor     string  `json:"corridor,omitempty"`
	DelayMinutes float64 `json:"delay_minutes"`
	Reason       string  `json:"reason"`
}

func (TrafficAlert) EventType() Type { return TypeTrafficAlert }

// DeliveryDelay reports an expected late arrival for a trip.
type DeliveryDelay struct {
	TripID       string  `json:"trip_id"`
	DelayMinutes float64 `json:"delay_minutes"`
	Reason       string  `json:"reason"`
}

func (DeliveryDelay) EventType() Type { return TypeDeliveryDelay }

// FuelLow reports a vehicle under its fuel threshold.
type FuelLow struct {
	VehicleID string  `json:"vehicle_id"`
	Percent   float64 `json:"percent"`
}

func (FuelLow) EventType() Type { return TypeFuelLow }

// MaintenanceRequired reports a vehicle needing service.
type MaintenanceRequired struct {
	VehicleID string `json:"vehicle_id"`
	Reason    string `json:"reason"`
}

func (MaintenanceRequired) EventType() Type { return TypeMaintenanceRequired }

// NewLoadPosted marks a load freshly ingested by the observer.
type NewLoadPosted struct {
	LoadID string `json:"load_id"`
}

func (NewLoadPosted) EventType() Type { return TypeNewLoadPosted }

// DriverRestRequired reports a driver out of hours mid-trip.
type DriverRestRequired struct {
	VehicleID string `json:"vehicle_id"`
}

func (DriverRestRequired) EventType() Type { return TypeDriverRestRequired }

// RouteDecision records the adapter's verdict for an in-flight trip.
type RouteDecision struct {
	TripID   string `json:"trip_id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (RouteDecision) EventType() Type { return TypeRouteDecision }

// InternalError records a swallowed failure inside an agent cycle.
type InternalError struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

func (InternalError) EventType() Type { return TypeInternalError }

// Event is one append-only record. Within a tick all events share the tick
// timestamp; Seq disambiguates their total order.
type Event struct {
	ID        string    `json:"event_id"`
	Type      Type      `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
	Payload   Payload   `json:"payload"`
}

// New creates an event with a fresh id. Seq is assigned by the store on
// append.
func New(ts time.Time, payload Payload) Event {
	return Event{
		ID:        shared.NewID("evt"),
		Type:      payload.EventType(),
		Timestamp: ts,
		Payload:   payload,
	}
}

// decodeInto unmarshals data into p and returns the payload by value, so
// decoded events carry the same concrete types as freshly emitted ones.
func decodeInto[P Payload](data []byte, t Type, p *P) (Payload, error) {
	if len(data) > 0 {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, shared.NewMalformed(fmt.Sprintf("%s payload: %v", t, err))
		}
	}
	return *p, nil
}

// decodePayload decodes data into the concrete payload value for t.
func decodePayload(t Type, data []byte) (Payload, error) {
	switch t {
	case TypeVehiclePositionUpdate:
		var p VehiclePositionUpdate
		return decodeInto(data, t, &p)
	case TypeLoadPosted:
		var p LoadPosted
		return decodeInto(data, t, &p)
	case TypeLoadMatched:
		var p LoadMatched
		return decodeInto(data, t, &p)
	case TypeTripStarted:
		var p TripStarted
		return decodeInto(data, t, &p)
	case TypeTripCompleted:
		var p TripCompleted
		return decodeInto(data, t, &p)
	case TypeTrafficAlert:
		var p TrafficAlert
		return decodeInto(data, t, &p)
	case TypeDeliveryDelay:
		var p DeliveryDelay
		return decodeInto(data, t, &p)
	case TypeFuelLow:
		var p FuelLow
		return decodeInto(data, t, &p)
	case TypeMaintenanceRequired:
		var p MaintenanceRequired
		return decodeInto(data, t, &p)
	case TypeNewLoadPosted:
		var p NewLoadPosted
		return decodeInto(data, t, &p)
	case TypeDriverRestRequired:
		var p DriverRestRequired
		return decodeInto(data, t, &p)
	case TypeRouteDecision:
		var p RouteDecision
		return decodeInto(data, t, &p)
	case TypeInternalError:
		var p InternalError
		return decodeInto(data, t, &p)
	}
	return nil, shared.NewMalformed(fmt.Sprintf("unknown event type %q", t))
}

// UnmarshalJSON decodes the payload into its concrete type based on the
// event_type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"event_id"`
		Type      Type            `json:"event_type"`
		Timestamp time.Time       `json:"timestamp"`
		Seq       uint64          `json:"seq"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := decodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}

	e.ID = raw.ID
	e.Type = raw.Type
	e.Timestamp = raw.Timestamp
	e.Seq = raw.Seq
	e.Payload = payload
	return nil
}

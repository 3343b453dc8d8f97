package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventCarriesPayloadType(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	e := New(ts, TrafficAlert{VehicleID: "truck_1", DelayMinutes: 45, Reason: "accident"})

	assert.Equal(t, TypeTrafficAlert, e.Type)
	assert.Equal(t, ts, e.Timestamp)
	assert.NotEmpty(t, e.ID)
	assert.Zero(t, e.Seq)
}

func TestEventJSONRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	e := New(ts, DeliveryDelay{TripID: "trip_1", DelayMinutes: 90, Reason: "monsoon flooding"})
	e.Seq = 7

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, e, decoded)
	payload, ok := decoded.Payload.(DeliveryDelay)
	require.True(t, ok)
	assert.Equal(t, 90.0, payload.DelayMinutes)
}

func TestEventUnmarshalUnknownType(t *testing.T) {
	raw := `{"event_id":"evt_1","event_type":"alien_invasion","timestamp":"2025-06-01T08:00:00Z","payload":{}}`

	var e Event
	err := json.Unmarshal([]byte(raw), &e)
	assert.Error(t, err)
}

func TestEventUnmarshalByTag(t *testing.T) {
	raw := `{"event_id":"evt_1","event_type":"fuel_low","timestamp":"2025-06-01T08:00:00Z","seq":3,` +
		`"payload":{"vehicle_id":"truck_4","percent":9.5}}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	payload, ok := e.Payload.(FuelLow)
	require.True(t, ok)
	assert.Equal(t, "truck_4", payload.VehicleID)
	assert.Equal(t, 9.5, payload.Percent)
}

package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

func delhi(t *testing.T) shared.Location {
	t.Helper()
	loc, err := shared.NewLocation(28.7041, 77.1025, "Delhi")
	require.NoError(t, err)
	return loc
}

func TestNewVehicle(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, v.Status)
	assert.Equal(t, 100.0, v.FuelLevelPercent)
	assert.Equal(t, 10.0, v.MaxDrivingHoursRemaining)
	assert.Equal(t, 0.0, v.CurrentLoadTons)
}

func TestNewVehicleValidation(t *testing.T) {
	_, err := NewVehicle("", "driver_1", delhi(t), 20)
	assert.Error(t, err)

	_, err = NewVehicle("truck_1", "", delhi(t), 20)
	assert.Error(t, err)

	_, err = NewVehicle("truck_1", "driver_1", delhi(t), 0)
	assert.Error(t, err)
}

func TestVehicleAvailable(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)
	assert.True(t, v.Available())

	v.FuelLevelPercent = 15
	assert.False(t, v.Available(), "fuel at threshold")

	v.FuelLevelPercent = 80
	v.MaxDrivingHoursRemaining = 1
	assert.False(t, v.Available(), "hours at threshold")

	v.MaxDrivingHoursRemaining = 8
	v.Status = StatusEnRouteEmpty
	assert.False(t, v.Available(), "not idle")

	v.Status = StatusIdle
	v.CurrentLoadTons = 5
	assert.False(t, v.Available(), "carrying cargo")
}

func TestVehicleLoadCargoCapacity(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)

	require.NoError(t, v.LoadCargo(15))
	err = v.LoadCargo(10)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 15.0, v.CurrentLoadTons)

	v.UnloadCargo()
	assert.Equal(t, 0.0, v.CurrentLoadTons)
}

func TestVehicleConsumeFuelClampsAtZero(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)

	v.ConsumeFuel(150)
	assert.Equal(t, 0.0, v.FuelLevelPercent)
}

func TestVehicleRecordDriving(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)

	v.RecordDriving(60, 1, false)
	v.RecordDriving(120, 2, true)

	assert.Equal(t, 180.0, v.TotalKmToday)
	assert.Equal(t, 120.0, v.LoadedKmToday)
	assert.Equal(t, 7.0, v.MaxDrivingHoursRemaining)
	assert.InDelta(t, 120.0/180.0, v.UtilizationRate(), 1e-9)

	v.RecordDriving(0, 20, false)
	assert.Equal(t, 0.0, v.MaxDrivingHoursRemaining, "hours clamp at zero")
}

func TestVehicleCloneIsDeep(t *testing.T) {
	v, err := NewVehicle("truck_1", "driver_1", delhi(t), 20)
	require.NoError(t, err)
	depot := delhi(t)
	v.HomeDepot = &depot

	cp := v.Clone()
	cp.HomeDepot.Name = "elsewhere"
	cp.FuelLevelPercent = 1

	assert.Equal(t, "Delhi", v.HomeDepot.Name)
	assert.Equal(t, 100.0, v.FuelLevelPercent)
}

func TestStatusMoving(t *testing.T) {
	assert.True(t, StatusEnRouteEmpty.Moving())
	assert.True(t, StatusEnRouteLoaded.Moving())
	assert.False(t, StatusIdle.Moving())
	assert.False(t, StatusMaintenance.Moving())
}

// Package seed generates the initial fleet and load board. Positions and
// distances come from a fixed table of Indian cities so the engine has a
// realistic geography to dispatch over without live feeds.
package seed

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// cityCoord is a seed-table entry prior to Location validation.
type cityCoord struct {
	lat, lng float64
	name     string
}

var cities = map[string]cityCoord{
	"delhi":     {28.6139, 77.2090, "Delhi"},
	"mumbai":    {19.0760, 72.8777, "Mumbai"},
	"bangalore": {12.9716, 77.5946, "Bangalore"},
	"chennai":   {13.0827, 80.2707, "Chennai"},
	"hyderabad": {17.3850, 78.4867, "Hyderabad"},
	"kolkata":   {22.5726, 88.3639, "Kolkata"},
	"pune":      {18.5204, 73.8567, "Pune"},
	"jaipur":    {26.9124, 75.7873, "Jaipur"},
	"lucknow":   {26.8467, 80.9462, "Lucknow"},
	"ahmedabad": {22.5726, 72.8311, "Ahmedabad"},
}

// cityNames is the deterministic iteration order over the city table.
var cityNames = func() []string {
	names := make([]string, 0, len(cities))
	for name := range cities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

type cityPair struct{ a, b string }

// distances holds approximate road distances between city pairs in km.
var distances = map[cityPair]float64{
	{"delhi", "mumbai"}:      1412,
	{"delhi", "bangalore"}:   2150,
	{"delhi", "chennai"}:     2180,
	{"delhi", "hyderabad"}:   1750,
	{"delhi", "kolkata"}:     1470,
	{"delhi", "pune"}:        1380,
	{"delhi", "jaipur"}:      270,
	{"delhi", "lucknow"}:     470,
	{"delhi", "ahmedabad"}:   960,
	{"mumbai", "bangalore"}:  840,
	{"mumbai", "chennai"}:    1340,
	{"mumbai", "hyderabad"}:  730,
	{"mumbai", "pune"}:       155,
	{"mumbai", "ahmedabad"}:  440,
	{"bangalore", "chennai"}: 340,
	{"bangalore", "hyderabad"}: 570,
	{"chennai", "hyderabad"}: 630,
	{"kolkata", "lucknow"}:   1030,
	{"pune", "hyderabad"}:    580,
	{"jaipur", "ahmedabad"}:  540,
}

// City returns the seed location for a known city key.
func City(key string) (shared.Location, error) {
	c, ok := cities[key]
	if !ok {
		return shared.Location{}, shared.NewNotFound("city", key)
	}
	return shared.NewLocation(c.lat, c.lng, c.name)
}

// CityNames lists the known city keys in sorted order.
func CityNames() []string {
	out := make([]string, len(cityNames))
	copy(out, cityNames)
	return out
}

// Distance looks up the road distance between two cities. The table is
// symmetric; unknown pairs fall back to a flat-grid estimate.
func Distance(cityA, cityB string) float64 {
	if d, ok := distances[cityPair{cityA, cityB}]; ok {
		return d
	}
	if d, ok := distances[cityPair{cityB, cityA}]; ok {
		return d
	}
	a, b := cities[cityA], cities[cityB]
	return math.Round(math.Sqrt(math.Pow(a.lat-b.lat, 2)+math.Pow(a.lng-b.lng, 2))*111*10) / 10
}

// GenerateFleet creates n trucks parked round-robin across the city table,
// with randomized specs and Delhi as the shared home depot.
func GenerateFleet(n int, rng *rand.Rand) ([]*fleet.Vehicle, error) {
	depot, err := City("delhi")
	if err != nil {
		return nil, err
	}

	vehicles := make([]*fleet.Vehicle, 0, n)
	for i := 0; i < n; i++ {
		city, err := City(cityNames[i%len(cityNames)])
		if err != nil {
			return nil, err
		}

		v, err := fleet.NewVehicle(
			fmt.Sprintf("truck_%03d", i+1),
			fmt.Sprintf("driver_%03d", i+1),
			city,
			uniform(rng, 10, 25),
		)
		if err != nil {
			return nil, err
		}
		v.FuelLevelPercent = uniform(rng, 60, 100)
		v.TotalKmToday = uniform(rng, 0, 300)
		v.LoadedKmToday = math.Min(uniform(rng, 0, 200), v.TotalKmToday)
		v.IdleMinutesToday = uniform(rng, 0, 90)
		v.MaxDrivingHoursRemaining = uniform(rng, 4, 10)
		homeDepot := depot
		v.HomeDepot = &homeDepot
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// GenerateLoads creates n available loads between random distinct city
// pairs. Pickup windows open now and close in 2 to 6 hours; the delivery
// deadline adds estimated travel time at 60 km/h plus a 1 to 4 hour buffer.
func GenerateLoads(n int, now time.Time, rng *rand.Rand) ([]*freight.Load, error) {
	loads := make([]*freight.Load, 0, n)
	for i := 0; i < n; i++ {
		originKey := cityNames[rng.Intn(len(cityNames))]
		destKey := originKey
		for destKey == originKey {
			destKey = cityNames[rng.Intn(len(cityNames))]
		}

		origin, err := City(originKey)
		if err != nil {
			return nil, err
		}
		dest, err := City(destKey)
		if err != nil {
			return nil, err
		}

		distance := Distance(originKey, destKey)
		l, err := freight.NewLoad(
			fmt.Sprintf("load_%03d", i+1),
			origin,
			dest,
			math.Round(uniform(rng, 2, 20)*10)/10,
			distance,
			math.Round(uniform(rng, 35, 80)*100)/100,
		)
		if err != nil {
			return nil, err
		}

		windowHours := uniform(rng, 2, 6)
		travelHours := distance / 60.0
		bufferHours := uniform(rng, 1, 4)
		l.PickupWindowStart = now
		l.PickupWindowEnd = now.Add(hours(windowHours))
		l.DeliveryDeadline = now.Add(hours(windowHours + travelHours + bufferHours))
		l.CreatedAt = now
		loads = append(loads, l)
	}
	return loads, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

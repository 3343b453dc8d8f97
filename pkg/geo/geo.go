// Package geo provides the pure geographic functions the dispatch core is
// built on: great-circle distance, bearing, and progress sampling along a
// road polyline. No state, no I/O.
package geo

import "math"

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// Polyline is an ordered sequence of [lat, lng] pairs approximating a
// drivable path. Points are stored lat-first; routing providers that emit
// [lng, lat] must swap before constructing one.
type Polyline [][2]float64

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLng*sinLng

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BearingDeg returns the initial bearing from the first point to the second,
// in degrees clockwise from true north, normalized to [0, 360).
func BearingDeg(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := radians(lat1)
	φ2 := radians(lat2)
	dLng := radians(lng2 - lng1)

	y := math.Sin(dLng) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// LengthKm returns the summed great-circle length of the polyline's segments.
func (p Polyline) LengthKm() float64 {
	total := 0.0
	for i := 0; i < len(p)-1; i++ {
		total += HaversineKm(p[i][0], p[i][1], p[i+1][0], p[i+1][1])
	}
	return total
}

// At samples the polyline at the given progress percent in [0, 100],
// interpolating linearly between the two surrounding points by index.
// Returns (lat, lng). An empty polyline samples to (0, 0).
func (p Polyline) At(progressPercent float64) (float64, float64) {
	if len(p) == 0 {
		return 0, 0
	}
	if len(p) == 1 {
		return p[0][0], p[0][1]
	}

	if progressPercent < 0 {
		progressPercent = 0
	}
	if progressPercent > 100 {
		progressPercent = 100
	}

	exact := (progressPercent / 100.0) * float64(len(p)-1)
	lower := int(exact)
	if lower >= len(p)-1 {
		last := p[len(p)-1]
		return last[0], last[1]
	}

	frac := exact - float64(lower)
	a, b := p[lower], p[lower+1]
	return a[0] + (b[0]-a[0])*frac, a[1] + (b[1]-a[1])*frac
}

// Interpolate builds a straight-line polyline between two endpoints with
// one point per approximately stepKm kilometers, but never fewer than
// minPoints points. Both endpoints are always included.
func Interpolate(startLat, startLng, endLat, endLng, stepKm float64, minPoints int) Polyline {
	if minPoints < 2 {
		minPoints = 2
	}

	distance := HaversineKm(startLat, startLng, endLat, endLng)
	points := minPoints
	if stepKm > 0 {
		if n := int(distance/stepKm) + 1; n > points {
			points = n
		}
	}

	line := make(Polyline, points)
	for i := 0; i < points; i++ {
		t := float64(i) / float64(points-1)
		line[i] = [2]float64{
			startLat + (endLat-startLat)*t,
			startLng + (endLng-startLng)*t,
		}
	}
	return line
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

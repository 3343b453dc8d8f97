package shared

import "fmt"

// Location is a geographic point with an optional human-readable name.
// Locations are value objects: once constructed they are never mutated.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// NewLocation creates a Location, validating coordinate ranges.
func NewLocation(lat, lng float64, name string) (Location, error) {
	if lat < -90 || lat > 90 {
		return Location{}, NewValidationError("lat", fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
	}
	if lng < -180 || lng > 180 {
		return Location{}, NewValidationError("lng", fmt.Sprintf("longitude %v out of range [-180, 180]", lng))
	}
	return Location{Lat: lat, Lng: lng, Name: name}, nil
}

// ValidCoordinate reports whether a (lat, lng) pair is within range.
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func (l Location) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s (%.4f, %.4f)", l.Name, l.Lat, l.Lng)
	}
	return fmt.Sprintf("(%.4f, %.4f)", l.Lat, l.Lng)
}

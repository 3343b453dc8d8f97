package matcher

import (
	"regexp"
	"strings"
)

// ID patterns the advisor is allowed to use. Long forms are tried first so
// "truck_001" is not clipped to a bare "v" match.
var (
	vehicleIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)truck_\d+`),
		regexp.MustCompile(`(?i)vehicle_\d+`),
		regexp.MustCompile(`(?i)v\d+`),
	}
	loadIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)load_\d+`),
		regexp.MustCompile(`(?i)l\d+`),
	}
)

// ParseApprovedMatches extracts vehicle-load pairs from advisor text. A
// pair counts as approved iff a vehicle id and a load id appear on the
// same line joined by a directional separator ("→" or "->"); trailing
// reasons after a colon are ignored. Unparseable text yields no pairs.
func ParseApprovedMatches(text string) []Pair {
	var pairs []Pair
	for _, line := range strings.Split(text, "\n") {
		var left, right string
		switch {
		case strings.Contains(line, "→"):
			parts := strings.SplitN(line, "→", 2)
			left, right = parts[0], parts[1]
		case strings.Contains(line, "->"):
			parts := strings.SplitN(line, "->", 2)
			left, right = parts[0], parts[1]
		default:
			continue
		}

		// drop the reason clause after the ids
		if idx := strings.Index(right, ":"); idx >= 0 {
			right = right[:idx]
		}

		vehicleID := firstMatch(vehicleIDPatterns, left)
		loadID := firstMatch(loadIDPatterns, right)
		if vehicleID != "" && loadID != "" {
			pairs = append(pairs, Pair{VehicleID: vehicleID, LoadID: loadID})
		}
	}
	return pairs
}

func firstMatch(patterns []*regexp.Regexp, s string) string {
	for _, p := range patterns {
		if m := p.FindString(s); m != "" {
			return m
		}
	}
	return ""
}

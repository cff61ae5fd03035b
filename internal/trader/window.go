package trader

import "fmt"

// TimeWindow is the half-open trading window [StartHour, EndHour).
type TimeWindow struct {
	StartHour int
	EndHour   int
}

// Validate rejects bounds outside 0..24 or an empty window.
func (w TimeWindow) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return &ConfigurationError{Field: "start_hour", Reason: fmt.Sprintf("must be within 0..23, got %d", w.StartHour)}
	}
	if w.EndHour < 1 || w.EndHour > 24 {
		return &ConfigurationError{Field: "end_hour", Reason: fmt.Sprintf("must be within 1..24, got %d", w.EndHour)}
	}
	if w.StartHour >= w.EndHour {
		return &ConfigurationError{Field: "end_hour", Reason: fmt.Sprintf("must be after start_hour %d, got %d", w.StartHour, w.EndHour)}
	}
	return nil
}

// Allows reports whether hour falls inside the window.
func (w TimeWindow) Allows(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

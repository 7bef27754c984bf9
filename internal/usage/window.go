package usage

import (
	"time"

	"github.com/zamadev/sandbox/internal/model"
)

// ParseWindow resolves the date window of a usage query. An explicit
// start/end pair (YYYY-MM-DD, inclusive) wins over a preset; with neither the
// window is nil, meaning unbounded.
func ParseWindow(preset, start, end string, now time.Time) (*DateRange, error) {
	switch {
	case start != "" && end != "":
		s, err := time.Parse(dateLayout, start)
		if err != nil {
			return nil, &model.ValidationError{Field: "start", Message: "must be a YYYY-MM-DD date"}
		}
		e, err := time.Parse(dateLayout, end)
		if err != nil {
			return nil, &model.ValidationError{Field: "end", Message: "must be a YYYY-MM-DD date"}
		}
		if e.Before(s) {
			return nil, &model.ValidationError{Field: "end", Message: "must not be before start"}
		}
		return &DateRange{Start: s, End: e}, nil
	case start != "" || end != "":
		return nil, &model.ValidationError{Field: "start", Message: "start and end must be given together"}
	case preset != "":
		rng, err := DateRangePreset(Preset(preset), now)
		if err != nil {
			return nil, err
		}
		return &rng, nil
	}
	return nil, nil
}

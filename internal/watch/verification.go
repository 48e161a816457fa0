package watch

import (
	"fmt"

	"github.com/okian/aiweather/internal/domain/types"
)

// Verifier checks that a connection starts with config_info, then an
// optional weather_data, then one visualization_update per model.
type Verifier struct {
	models   []string
	seen     map[string]bool
	received int
	done     bool
	problems []string
}

// Observe feeds the next message type and model name (if any).
func (v *Verifier) Observe(msgType, modelName string, models []string) {
	v.received++
	if v.done {
		return
	}
	switch {
	case v.received == 1:
		if msgType != types.TypeConfigInfo {
			v.fail("first message is %q, want %q", msgType, types.TypeConfigInfo)
			v.done = true
			return
		}
		v.models = models
		v.seen = make(map[string]bool, len(models))
		v.done = len(models) == 0
	case msgType == types.TypeWeatherData:
		if v.received != 2 {
			v.fail("weather_data arrived at position %d inside the initial burst", v.received)
		}
	case msgType == types.TypeVisualizationUpdate:
		if v.seen[modelName] {
			v.fail("model %q repeated in the initial burst", modelName)
		}
		v.seen[modelName] = true
		if len(v.seen) == len(v.models) {
			v.done = true
			for _, m := range v.models {
				if !v.seen[m] {
					v.fail("model %q missing from the initial burst", m)
				}
			}
		}
	default:
		v.fail("unexpected %q in the initial burst", msgType)
	}
}

// Complete reports whether the initial burst has been fully received.
func (v *Verifier) Complete() bool { return v.done }

// Problems returns every ordering violation seen so far.
func (v *Verifier) Problems() []string { return v.problems }

func (v *Verifier) fail(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

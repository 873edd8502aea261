package nodes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Timestamp is a frame position: either absolute seconds or a percentage of
// the source video's duration.
type Timestamp struct {
	Value   float64
	Percent bool
}

func (t Timestamp) String() string {
	if t.Percent {
		return strconv.FormatFloat(t.Value, 'f', -1, 64) + "%"
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64) + "s"
}

// ParseTimestamp accepts a number of seconds, a numeric string, or a
// percentage string such as "50%". nil and "" mean the first frame.
func ParseTimestamp(v interface{}) (Timestamp, error) {
	switch x := v.(type) {
	case nil:
		return Timestamp{}, nil
	case float64:
		return seconds(x)
	case int:
		return seconds(float64(x))
	case int64:
		return seconds(float64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return Timestamp{}, nil
		}
		if num, ok := strings.CutSuffix(s, "%"); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
			if err != nil {
				return Timestamp{}, fmt.Errorf("invalid timestamp percentage %q", x)
			}
			if math.IsNaN(f) || f < 0 || f > 100 {
				return Timestamp{}, fmt.Errorf("timestamp percentage %q out of range 0-100", x)
			}
			return Timestamp{Value: f, Percent: true}, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("invalid timestamp %q", x)
		}
		return seconds(f)
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %v", v)
}

func seconds(f float64) (Timestamp, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Timestamp{}, fmt.Errorf("timestamp %v is not a finite number", f)
	}
	if f < 0 {
		return Timestamp{}, fmt.Errorf("timestamp %v is negative", f)
	}
	return Timestamp{Value: f}, nil
}

// Seconds resolves t against a video duration. Percentages need a positive
// duration; absolute values are clamped to it when it is known.
func (t Timestamp) Seconds(duration float64) (float64, error) {
	if t.Percent {
		if duration <= 0 {
			return 0, fmt.Errorf("cannot resolve %s without a video duration", t)
		}
		return duration * t.Value / 100, nil
	}
	if duration > 0 && t.Value > duration {
		return duration, nil
	}
	return t.Value, nil
}

package backlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidProgress = errors.New("progress must be a number between 0 and 100")

// ParseProgress converts a decoded JSON value into a stored progress value:
// within [0, 100] and rounded half away from zero to two decimals. nil means
// absent and yields 0. Numeric strings are accepted.
func ParseProgress(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidProgress, v.String())
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if trimmed == "" || err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidProgress, v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: got %T", ErrInvalidProgress, value)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 100 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProgress, f)
	}
	return math.Round(f*100) / 100, nil
}

// ParseProgressJSON decodes a raw JSON progress field. An empty or null
// message yields 0.
func ParseProgressJSON(raw json.RawMessage) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, nil
	}
	var value any
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidProgress, trimmed)
	}
	return ParseProgress(value)
}

// Package timex holds small time helpers shared by the config loaders.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration so it can be read from JSON either as a
// string ("15m", "7d") or as integer nanoseconds.
type Duration struct {
	time.Duration
}

// ParseDuration accepts everything time.ParseDuration does plus a whole
// number of days with a "d" suffix, e.g. "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = ParseDuration(value)
		return err
	default:
		return errors.New("invalid duration")
	}
}

// UnmarshalText lets Duration be used with env and flag parsers.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = ParseDuration(string(text))
	return err
}

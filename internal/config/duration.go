package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings such as "10s", "2d" or "1w".
// A bare integer is read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	raw := strings.TrimSpace(value.Value)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := parseDurationExtended(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// parseDurationExtended accepts Go durations plus d (24h) and w (7d) units, e.g. "1w2d3h".
func parseDurationExtended(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if !strings.ContainsAny(raw, "dw") {
		return time.ParseDuration(raw)
	}

	s := raw
	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var total time.Duration
	for s != "" {
		numEnd := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
		if numEnd <= 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		num := s[:numEnd]
		rest := s[numEnd:]
		unitEnd := strings.IndexFunc(rest, func(r rune) bool { return (r >= '0' && r <= '9') || r == '.' })
		if unitEnd < 0 {
			unitEnd = len(rest)
		}
		unit := rest[:unitEnd]
		s = rest[unitEnd:]

		var part time.Duration
		switch unit {
		case "d", "w":
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", raw)
			}
			hours := f * 24
			if unit == "w" {
				hours *= 7
			}
			part = time.Duration(hours * float64(time.Hour))
		default:
			p, err := time.ParseDuration(num + unit)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", raw)
			}
			part = p
		}
		total += part
	}
	return sign * total, nil
}

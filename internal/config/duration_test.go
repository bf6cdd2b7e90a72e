package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDurationExtended_DaysWeeksAndFallback(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"3d", 3 * 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1w2d3h", (7*24 + 2*24 + 3) * time.Hour},
		{"1.5d", 36 * time.Hour},
		{"-2w", -14 * 24 * time.Hour},
		{"1d30m", 24*time.Hour + 30*time.Minute},
		{"10s", 10 * time.Second},
	}

	for _, tc := range cases {
		got, err := parseDurationExtended(tc.in)
		if err != nil {
			t.Fatalf("parseDurationExtended(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseDurationExtended(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseDurationExtended_Invalid(t *testing.T) {
	bad := []string{"", "   ", "3x", "2d3x", "-", "d"}
	for _, in := range bad {
		if _, err := parseDurationExtended(in); err == nil {
			t.Fatalf("parseDurationExtended(%q) expected error, got nil", in)
		}
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 15\nb: 2d\n"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A.Std() != 15*time.Second {
		t.Fatalf("a = %v, want 15s", out.A)
	}
	if out.B.Std() != 48*time.Hour {
		t.Fatalf("b = %v, want 48h", out.B)
	}

	if err := yaml.Unmarshal([]byte("a: [1]\n"), &out); err == nil {
		t.Fatalf("expected error for sequence duration")
	}
}

// v1
// internal/bands/bands_test.go
package bands

import (
	"math"
	"testing"
)

func TestLabelTotalOverRealLine(t *testing.T) {
	table := DefaultOutdoorBands()

	cases := []struct {
		name string
		in   float64
		want string
	}{
		{"far below minimum", -500, "freezing"},
		{"at lower edge", -60, "freezing"},
		{"boundary is half open", 0, "cold"},
		{"mid band", 15.5, "mild"},
		{"upper boundary belongs to next band", 20, "warm"},
		{"hot scenario", 32, "hot"},
		{"far above maximum", 500, "hot"},
		{"negative infinity", math.Inf(-1), "freezing"},
		{"positive infinity", math.Inf(1), "hot"},
		{"nan clamps low", math.NaN(), "freezing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := table.Label(tc.in)
			if got == "" {
				t.Fatalf("label must never be empty for %v", tc.in)
			}
			if got != tc.want {
				t.Fatalf("Label(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewTableRejectsGapsAndEmptyLabels(t *testing.T) {
	if _, err := NewTable(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := NewTable([]Band{{Label: "", Min: 0, Max: 10}}); err == nil {
		t.Fatal("expected error for empty label")
	}
	if _, err := NewTable([]Band{{Label: "a", Min: 0, Max: 10}, {Label: "b", Min: 12, Max: 20}}); err == nil {
		t.Fatal("expected error for non-contiguous bands")
	}
	if _, err := NewTable([]Band{{Label: "a", Min: 10, Max: 10}}); err == nil {
		t.Fatal("expected error for empty range")
	}
}

func TestNewTableSortsInput(t *testing.T) {
	table, err := NewTable([]Band{
		{Label: "high", Min: 10, Max: 20},
		{Label: "low", Min: 0, Max: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table[0].Label != "low" {
		t.Fatalf("expected table sorted by lower bound, got %q first", table[0].Label)
	}
}

func TestDiscretizerKey(t *testing.T) {
	d := NewDiscretizer(nil, nil)

	key := d.Key(32, 24, "")
	if key.Outdoor != "hot" {
		t.Fatalf("outdoor band for 32C = %q, want hot", key.Outdoor)
	}
	if key.Target != "comfortable" {
		t.Fatalf("target band for 24C = %q, want comfortable", key.Target)
	}
	if key.Room != DefaultRoomCategory {
		t.Fatalf("empty room must default to %q, got %q", DefaultRoomCategory, key.Room)
	}

	key = d.Key(-5, 17, " Large ")
	if key.Outdoor != "freezing" || key.Target != "cold" || key.Room != "large" {
		t.Fatalf("unexpected key: %+v", key)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	in := Key{Outdoor: "hot", Target: "comfortable", Room: "medium"}
	out, err := ParseKey(in.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}

	if _, err := ParseKey("hot|comfortable"); err == nil {
		t.Fatal("expected error for two-part key")
	}
	if _, err := ParseKey("hot||medium"); err == nil {
		t.Fatal("expected error for empty component")
	}
}

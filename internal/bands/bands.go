// v1
// internal/bands/bands.go

// Package bands discretizes continuous thermostat inputs into the labels
// used to index learned values. Lookups are total over the real line:
// values below the first band clamp to it, values at or above the last
// band's upper bound clamp to the last one.
package bands

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Key identifies a discrete context. It is immutable and comparable, so it
// can be used directly as a map key.
type Key struct {
	Outdoor string `json:"outdoor"`
	Target  string `json:"target"`
	Room    string `json:"room"`
}

const keySeparator = "|"

// String renders the key in its canonical serialized form,
// "<outdoor>|<target>|<room>". Used by the persistence schema.
func (k Key) String() string {
	return k.Outdoor + keySeparator + k.Target + keySeparator + k.Room
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed context key %q", s)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Key{}, fmt.Errorf("malformed context key %q", s)
		}
	}
	return Key{Outdoor: parts[0], Target: parts[1], Room: parts[2]}, nil
}

// Band is a half-open temperature range [Min, Max) carrying a stable label.
type Band struct {
	Label string
	Min   float64
	Max   float64
}

// Table is an ordered list of contiguous bands.
type Table []Band

// NewTable validates that the bands are non-empty, labeled, ascending and
// contiguous, and returns the table sorted by lower bound.
func NewTable(in []Band) (Table, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("band table must not be empty")
	}
	t := make(Table, len(in))
	copy(t, in)
	sort.SliceStable(t, func(i, j int) bool { return t[i].Min < t[j].Min })
	for i, b := range t {
		if strings.TrimSpace(b.Label) == "" {
			return nil, fmt.Errorf("band %d has an empty label", i)
		}
		if b.Max <= b.Min {
			return nil, fmt.Errorf("band %q has max %.2f <= min %.2f", b.Label, b.Max, b.Min)
		}
		if i > 0 && t[i-1].Max != b.Min {
			return nil, fmt.Errorf("band %q is not contiguous with %q", b.Label, t[i-1].Label)
		}
	}
	return t, nil
}

// Label resolves a value to its band label. Out-of-range values clamp to
// the first or last band, and NaN clamps to the first band so the function
// stays total.
func (t Table) Label(v float64) string {
	if len(t) == 0 {
		return ""
	}
	if math.IsNaN(v) || v < t[0].Min {
		return t[0].Label
	}
	for _, b := range t {
		if v >= b.Min && v < b.Max {
			return b.Label
		}
	}
	return t[len(t)-1].Label
}

// DefaultRoomCategory is used when no room-category provider is available
// or the provider returns nothing useful.
const DefaultRoomCategory = "medium"

// DefaultOutdoorBands covers the outdoor temperature range seen by the
// deployments this service targets.
func DefaultOutdoorBands() Table {
	return Table{
		{Label: "freezing", Min: -60, Max: 0},
		{Label: "cold", Min: 0, Max: 10},
		{Label: "mild", Min: 10, Max: 20},
		{Label: "warm", Min: 20, Max: 28},
		{Label: "hot", Min: 28, Max: 60},
	}
}

// DefaultTargetBands covers the thermostat setpoint range.
func DefaultTargetBands() Table {
	return Table{
		{Label: "cold", Min: 10, Max: 18},
		{Label: "cool", Min: 18, Max: 21},
		{Label: "comfortable", Min: 21, Max: 25},
		{Label: "warm", Min: 25, Max: 28},
		{Label: "hot", Min: 28, Max: 40},
	}
}

// Discretizer maps continuous inputs to a Key. It is a pure lookup with no
// failure mode and is safe for concurrent use once built.
type Discretizer struct {
	outdoor Table
	target  Table
}

// NewDiscretizer builds a discretizer from the supplied tables. Nil tables
// fall back to the built-in defaults.
func NewDiscretizer(outdoor, target Table) *Discretizer {
	if len(outdoor) == 0 {
		outdoor = DefaultOutdoorBands()
	}
	if len(target) == 0 {
		target = DefaultTargetBands()
	}
	return &Discretizer{outdoor: outdoor, target: target}
}

// Key resolves the discrete context for the given readings. An empty room
// category falls back to DefaultRoomCategory.
func (d *Discretizer) Key(outdoorC, targetC float64, room string) Key {
	room = strings.TrimSpace(strings.ToLower(room))
	if room == "" {
		room = DefaultRoomCategory
	}
	return Key{
		Outdoor: d.outdoor.Label(outdoorC),
		Target:  d.target.Label(targetC),
		Room:    room,
	}
}

// v1
// internal/learning/actions.go
package learning

import "fmt"

// Action is a thermostat adjustment in whole degrees Celsius. The action
// space is fixed at startup and never changes at runtime.
type Action int

// NumActions is the size of the fixed action space.
const NumActions = 5

// Actions enumerates the action space in its stable order. Ties during
// greedy selection break toward the earlier entry.
var Actions = [NumActions]Action{-2, -1, 0, +1, +2}

// Index returns the position of the action in the enumeration, or -1 when
// the value is outside the action space.
func (a Action) Index() int {
	for i, v := range Actions {
		if v == a {
			return i
		}
	}
	return -1
}

// ActionAt returns the action at the given enumeration index.
func ActionAt(i int) (Action, error) {
	if i < 0 || i >= NumActions {
		return 0, fmt.Errorf("action index %d out of range", i)
	}
	return Actions[i], nil
}

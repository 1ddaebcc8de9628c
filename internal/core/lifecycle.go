package core

import (
	"fmt"

	"capresearch/pkg/domain"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle states. Untyped so they convert to statekit.StateID.
const (
	lifecycleNew       = "new"
	lifecycleReview    = "review"
	lifecycleReady     = "ready"
	lifecycleCompleted = "completed"
)

// lifecycleContext identifies the capability whose status is being moved.
type lifecycleContext struct {
	CapabilityID string
}

func advanceEvent(to string) string { return "advance_to_" + to }

// Lifecycle models the intended forward research flow new, review, ready,
// completed. Forward jumps are allowed; anything else is a regression.
type Lifecycle struct{}

// Allows reports whether moving from one status to another follows the
// forward flow. Staying put is always allowed.
func (Lifecycle) Allows(capabilityID string, from, to domain.Status) (bool, error) {
	if from == to {
		return true, nil
	}
	if !from.Valid() || !to.Valid() {
		return false, fmt.Errorf("unknown status transition %q -> %q", from, to)
	}
	builder := statekit.NewMachine[lifecycleContext]("capability-lifecycle").
		WithInitial(statekit.StateID(string(from))).
		WithContext(lifecycleContext{CapabilityID: capabilityID})

	builder.State(lifecycleNew).
		On(statekit.EventType(advanceEvent(lifecycleReview))).Target(lifecycleReview).
		On(statekit.EventType(advanceEvent(lifecycleReady))).Target(lifecycleReady).
		On(statekit.EventType(advanceEvent(lifecycleCompleted))).Target(lifecycleCompleted).
		Done()
	builder.State(lifecycleReview).
		On(statekit.EventType(advanceEvent(lifecycleReady))).Target(lifecycleReady).
		On(statekit.EventType(advanceEvent(lifecycleCompleted))).Target(lifecycleCompleted).
		Done()
	builder.State(lifecycleReady).
		On(statekit.EventType(advanceEvent(lifecycleCompleted))).Target(lifecycleCompleted).
		Done()
	builder.State(lifecycleCompleted).Done()

	machine, err := builder.Build()
	if err != nil {
		return false, fmt.Errorf("build lifecycle machine: %w", err)
	}
	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	interpreter.Send(statekit.Event{Type: statekit.EventType(advanceEvent(string(to)))})
	return string(interpreter.State().Value) == string(to), nil
}

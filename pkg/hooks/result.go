package hooks

import "context"

// Action tells the pipeline how to proceed after a handler returns.
type Action int

const (
    // ActContinue passes the data to the next handler.
    ActContinue Action = iota
    // ActPreventDefault skips the remaining handlers and the caller's
    // default behaviour.
    ActPreventDefault
    // ActStopPropagation skips the remaining handlers and suppresses only
    // the caller's public event.
    ActStopPropagation
)

func (a Action) String() string {
    switch a {
    case ActPreventDefault:
        return "prevent_default"
    case ActStopPropagation:
        return "stop_propagation"
    default:
        return "continue"
    }
}

// Result is returned by a Handler: the action plus the (possibly transformed) data.
type Result struct {
    Action Action
    Data   any
}

func Continue(data any) Result        { return Result{Action: ActContinue, Data: data} }
func PreventDefault(data any) Result  { return Result{Action: ActPreventDefault, Data: data} }
func StopPropagation(data any) Result { return Result{Action: ActStopPropagation, Data: data} }

// Handler observes or transforms the data flowing through an extension point.
// A non-nil error aborts the pipeline.
type Handler func(ctx context.Context, data any) (Result, error)

// Outcome describes a completed pipeline run.
type Outcome struct {
    // Data is the value after the last executed handler.
    Data any
    // Action is ActContinue unless a handler short-circuited.
    Action Action
    // Owner is the plugin that short-circuited, if any.
    Owner string
}

// Prevented reports whether the default behaviour must be skipped.
func (o Outcome) Prevented() bool { return o.Action == ActPreventDefault }

// Emit reports whether the caller should emit its public event.
func (o Outcome) Emit() bool { return o.Action == ActContinue }

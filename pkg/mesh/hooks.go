package mesh

import (
    "context"
    "fmt"

    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
)

// runHook threads data through the named pipeline and asserts the result
// keeps its type.
func runHook[T any](ctx context.Context, reg *hooks.Registry, name hooks.Name, data T) (T, hooks.Outcome, error) {
    if reg.Len(name) == 0 { return data, hooks.Outcome{Data: data}, nil }
    out, err := reg.Run(ctx, name, data)
    if err != nil {
        metrics.HookRuns.WithLabelValues(string(name), "error").Inc()
        return data, out, err
    }
    metrics.HookRuns.WithLabelValues(string(name), out.Action.String()).Inc()
    v, ok := out.Data.(T)
    if !ok { return data, out, fmt.Errorf("%w: %s returned %T, want %T", ErrHookData, name, out.Data, data) }
    return v, out, nil
}

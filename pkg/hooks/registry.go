// Package hooks implements the ordered extension pipeline used by the mesh
// member. Plugins register handlers for a closed set of names; a run threads
// data through the handlers sequentially in registration order, and any
// handler may short-circuit with PreventDefault or StopPropagation.
package hooks

import (
    "context"
    "errors"
    "fmt"
    "sync"
)

var (
    ErrDuplicatePlugin = errors.New("hooks: duplicate plugin")
    ErrUnknownHook     = errors.New("hooks: unknown hook name")
)

// Plugin bundles a set of handlers under an owner name.
type Plugin interface {
    Name() string
    Hooks() map[Name]Handler
}

type entry struct {
    owner string
    fn    Handler
}

// Registry holds the registered handlers. It is safe for concurrent use;
// handlers themselves always run without the registry lock held.
type Registry struct {
    mu       sync.RWMutex
    owners   map[string]struct{}
    order    []string
    handlers map[Name][]entry
}

func NewRegistry() *Registry {
    return &Registry{owners: make(map[string]struct{}), handlers: make(map[Name][]entry)}
}

// Register adds the handlers of owner. An owner can register only once and
// every name must be known; on error nothing is registered.
func (r *Registry) Register(owner string, hs map[Name]Handler) error {
    if owner == "" { return errors.New("hooks: empty owner") }
    for n, fn := range hs {
        if !Known(n) { return fmt.Errorf("%w: %q", ErrUnknownHook, n) }
        if fn == nil { return fmt.Errorf("hooks: nil handler for %q", n) }
    }
    r.mu.Lock(); defer r.mu.Unlock()
    if _, ok := r.owners[owner]; ok { return fmt.Errorf("%w: %q", ErrDuplicatePlugin, owner) }
    r.owners[owner] = struct{}{}
    r.order = append(r.order, owner)
    for n, fn := range hs {
        r.handlers[n] = append(r.handlers[n], entry{owner: owner, fn: fn})
    }
    return nil
}

// Use registers a plugin under its own name.
func (r *Registry) Use(p Plugin) error {
    if p == nil { return errors.New("hooks: nil plugin") }
    return r.Register(p.Name(), p.Hooks())
}

// Owners returns registered owners in registration order.
func (r *Registry) Owners() []string {
    r.mu.RLock(); defer r.mu.RUnlock()
    return append([]string(nil), r.order...)
}

// Len returns the number of handlers registered for n.
func (r *Registry) Len(n Name) int {
    r.mu.RLock(); defer r.mu.RUnlock()
    return len(r.handlers[n])
}

// Run executes the handlers of name in registration order. Each handler sees
// the data returned by the previous one. The first PreventDefault or
// StopPropagation ends the run. A handler error or a cancelled ctx aborts it.
func (r *Registry) Run(ctx context.Context, name Name, data any) (Outcome, error) {
    if !Known(name) { return Outcome{Data: data}, fmt.Errorf("%w: %q", ErrUnknownHook, name) }
    r.mu.RLock()
    chain := append([]entry(nil), r.handlers[name]...)
    r.mu.RUnlock()

    out := Outcome{Data: data, Action: ActContinue}
    for _, e := range chain {
        if err := ctx.Err(); err != nil { return out, err }
        res, err := e.fn(ctx, out.Data)
        if err != nil { return out, fmt.Errorf("hooks: %s handler of %q: %w", name, e.owner, err) }
        out.Data = res.Data
        if res.Action != ActContinue {
            out.Action = res.Action
            out.Owner = e.owner
            return out, nil
        }
    }
    return out, nil
}

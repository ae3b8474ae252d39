package mesh

import "context"

// The *Async variants run an operation on its own goroutine and hand the
// outcome to done. With a nil done a failure is emitted as an ErrorEvent
// instead, so every error is reported exactly once.

func (m *Member) async(op string, fn func() error, done func(error)) {
    go func() {
        err := fn()
        if done != nil {
            done(err)
            return
        }
        if err != nil { m.bus.Emit(ErrorEvent{Op: op, Err: err}) }
    }()
}

func (m *Member) JoinAsync(ctx context.Context, done func(error)) {
    m.async("join", func() error { return m.Join(ctx) }, done)
}

func (m *Member) LeaveAsync(ctx context.Context, done func(error)) {
    m.async("leave", func() error { return m.Leave(ctx) }, done)
}

func (m *Member) SubscribeAsync(ctx context.Context, ch string, done func(error)) {
    m.async("subscribe", func() error { return m.Subscribe(ctx, ch) }, done)
}

func (m *Member) UnsubscribeAsync(ctx context.Context, ch string, done func(error)) {
    m.async("unsubscribe", func() error { return m.Unsubscribe(ctx, ch) }, done)
}

func (m *Member) StartAdvertiseAsync(ctx context.Context, metadata map[string]string, done func(AdInfo, error)) {
    var info AdInfo
    var cb func(error)
    if done != nil { cb = func(err error) { done(info, err) } }
    m.async("advertise_start", func() (err error) {
        info, err = m.StartAdvertise(ctx, metadata)
        return err
    }, cb)
}

func (m *Member) StopAdvertiseAsync(ctx context.Context, done func(AdInfo, error)) {
    var info AdInfo
    var cb func(error)
    if done != nil { cb = func(err error) { done(info, err) } }
    m.async("advertise_stop", func() (err error) {
        info, err = m.StopAdvertise(ctx)
        return err
    }, cb)
}

package mesh

import (
    "context"
    "fmt"

    "github.com/amirimatin/go-mesh/pkg/channel"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
)

// Subscribe starts delivering messages published on ch as MessageEvents.
func (m *Member) Subscribe(ctx context.Context, ch string) error {
    return m.changeSubscription(ctx, ch, true)
}

// Unsubscribe stops delivering messages published on ch.
func (m *Member) Unsubscribe(ctx context.Context, ch string) error {
    return m.changeSubscription(ctx, ch, false)
}

func (m *Member) changeSubscription(ctx context.Context, ch string, add bool) error {
    if _, _, err := m.joined(); err != nil { return err }
    if err := channel.Validate(ch); err != nil { return err }

    before, after := hooks.ConsumerGetBefore, hooks.ConsumerGetAfter
    if !add { before, after = hooks.ConsumerReleaseBefore, hooks.ConsumerReleaseAfter }

    ch, bout, err := runHook(ctx, m.hooks, before, ch)
    if err != nil { return err }
    if bout.Prevented() { return nil }
    if err := channel.Validate(ch); err != nil { return err }

    m.mu.Lock()
    if m.state != StateJoined {
        m.mu.Unlock()
        return ErrNotJoined
    }
    if add {
        err = m.subs.Add(m.sub, ch)
    } else {
        err = m.subs.Remove(m.sub, ch)
    }
    n := m.subs.Len()
    m.mu.Unlock()
    if err != nil { return err }
    metrics.Subscriptions.Set(float64(n))

    _, aout, err := runHook(ctx, m.hooks, after, ch)
    if err != nil { return err }
    if !bout.Emit() || !aout.Emit() { return nil }
    if add {
        m.bus.Emit(SubscribeEvent{Channel: ch})
    } else {
        m.bus.Emit(UnsubscribeEvent{Channel: ch})
    }
    return nil
}

// Publish frames payload for ch and sends it to every connected subscriber.
// Delivery is at most once and unacknowledged.
func (m *Member) Publish(ctx context.Context, ch, payload string) error {
    if _, _, err := m.joined(); err != nil { return err }
    if err := channel.Validate(ch); err != nil { return err }

    msg, before, err := runHook(ctx, m.hooks, hooks.ConsumerWriteBefore, Message{Channel: ch, Payload: payload})
    if err != nil { return err }
    if before.Prevented() { return nil }
    frame, err := channel.Frame(msg.Channel, msg.Payload)
    if err != nil { return err }

    pub, _, err := m.joined()
    if err != nil { return err }
    if err := pub.Send(frame); err != nil {
        return fmt.Errorf("%w: send on %q: %v", ErrTransport, msg.Channel, err)
    }
    metrics.MessagesPublished.WithLabelValues(msg.Channel).Inc()

    msg, after, err := runHook(ctx, m.hooks, hooks.ConsumerWriteAfter, msg)
    if err != nil { return err }
    if before.Emit() && after.Emit() { m.bus.Emit(PublishEvent{Channel: msg.Channel, Payload: msg.Payload}) }
    return nil
}

// onFrame is the subscribe socket's frame handler.
func (m *Member) onFrame(frame []byte) {
    name, payload, err := channel.Parse(frame)
    if err != nil {
        metrics.FramesMalformed.Inc()
        m.log.Debug("dropping malformed frame", "len", len(frame))
        return
    }
    ctx := context.Background()
    msg, before, err := runHook(ctx, m.hooks, hooks.WorkReadBefore, Message{Channel: name, Payload: payload})
    if err != nil {
        m.bus.Emit(ErrorEvent{Op: "message", Err: err})
        return
    }
    if before.Prevented() { return }
    metrics.MessagesReceived.WithLabelValues(msg.Channel).Inc()

    msg, after, err := runHook(ctx, m.hooks, hooks.WorkReadAfter, msg)
    if err != nil {
        m.bus.Emit(ErrorEvent{Op: "message", Err: err})
        return
    }
    if before.Emit() && after.Emit() { m.bus.Emit(MessageEvent{Channel: msg.Channel, Payload: msg.Payload}) }
}

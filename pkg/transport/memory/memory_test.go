package memory

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-mesh/pkg/transport"
)

func collect(s transport.SubSocket) <-chan string {
    ch := make(chan string, 16)
    s.OnFrame(func(f []byte) { ch <- string(f) })
    return ch
}

func TestPubSub_FilteredDelivery(t *testing.T) {
    ctx := context.Background()
    hub := NewHub()
    pub := hub.NewPub()
    require.NoError(t, pub.Bind(ctx, "0.0.0.0", 5000))
    defer pub.Close()

    sub := hub.NewSub()
    defer sub.Close()
    got := collect(sub)
    sub.AddFilter([]byte("chat:"))
    require.NoError(t, sub.Connect("127.0.0.1", 5000))

    require.NoError(t, pub.Send([]byte("other:x")))
    require.NoError(t, pub.Send([]byte("chat:hello")))
    select {
    case f := <-got:
        assert.Equal(t, "chat:hello", f)
    case <-time.After(2 * time.Second):
        t.Fatal("frame not delivered")
    }
}

func TestBind_PortInUse(t *testing.T) {
    ctx := context.Background()
    hub := NewHub()
    p1 := hub.NewPub()
    require.NoError(t, p1.Bind(ctx, "0.0.0.0", 5001))
    assert.ErrorIs(t, hub.NewPub().Bind(ctx, "0.0.0.0", 5001), ErrPortInUse)
    require.NoError(t, p1.Close())
    assert.False(t, hub.Bound(5001))
    assert.NoError(t, hub.NewPub().Bind(ctx, "0.0.0.0", 5001))
}

func TestConnect_NoPublisher(t *testing.T) {
    sub := NewHub().NewSub()
    defer sub.Close()
    assert.ErrorIs(t, sub.Connect("127.0.0.1", 9), ErrNoPublisher)
}

func TestDisconnect_StopsDelivery(t *testing.T) {
    ctx := context.Background()
    hub := NewHub()
    pub := hub.NewPub()
    require.NoError(t, pub.Bind(ctx, "0.0.0.0", 5002))
    sub := hub.NewSub()
    defer sub.Close()
    got := collect(sub)
    sub.AddFilter([]byte(""))
    require.NoError(t, sub.Connect("h", 5002))
    require.NoError(t, sub.Disconnect("h", 5002))
    require.NoError(t, pub.Send([]byte("x:y")))
    select {
    case f := <-got:
        t.Fatalf("unexpected frame %q", f)
    case <-time.After(50 * time.Millisecond):
    }
}

func TestSendBeforeBind(t *testing.T) {
    pub := NewHub().NewPub()
    assert.ErrorIs(t, pub.Send([]byte("x")), transport.ErrNotBound)
    require.NoError(t, pub.Close())
    assert.ErrorIs(t, pub.Send([]byte("x")), transport.ErrClosed)
}

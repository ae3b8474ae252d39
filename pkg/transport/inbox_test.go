package transport

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestInbox_FilterAndDeliver(t *testing.T) {
    var in Inbox
    var got []string
    in.OnFrame(func(f []byte) { got = append(got, string(f)) })

    assert.False(t, in.Deliver([]byte("chat:hi")))
    in.AddFilter([]byte("chat:"))
    assert.True(t, in.Deliver([]byte("chat:hi")))
    assert.False(t, in.Deliver([]byte("chatter:hi")))
    assert.Equal(t, []string{"chat:hi"}, got)
}

func TestInbox_RefCountedFilters(t *testing.T) {
    var in Inbox
    in.AddFilter([]byte("a:"))
    in.AddFilter([]byte("a:"))
    in.RemoveFilter([]byte("a:"))
    assert.True(t, in.Match([]byte("a:x")))
    in.RemoveFilter([]byte("a:"))
    assert.False(t, in.Match([]byte("a:x")))
    in.RemoveFilter([]byte("missing:"))
}

func TestInbox_NoHandler(t *testing.T) {
    var in Inbox
    in.AddFilter([]byte(""))
    assert.False(t, in.Deliver([]byte("x")))
}

// Package channel implements the channel naming and framing rules of the
// publish/subscribe layer. A frame is "<channel><Separator><payload>"; the
// channel part never contains the separator, the payload may.
package channel

import (
    "bytes"
    "errors"
    "fmt"
    "strings"
)

// Separator divides the channel name from the payload inside a frame.
const Separator = ':'

var (
    ErrInvalidName = errors.New("channel: invalid channel name")
    ErrMalformed   = errors.New("channel: malformed frame")
)

// Validate reports whether name can be used as a channel. Only the separator
// is reserved; the empty name is accepted and matches frames that start with
// the separator.
func Validate(name string) error {
    if strings.IndexByte(name, Separator) >= 0 {
        return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, string(Separator))
    }
    return nil
}

// Filter returns the subscription prefix for name. Including the separator
// keeps "a" from matching frames of channel "ab".
func Filter(name string) []byte {
    b := make([]byte, 0, len(name)+1)
    b = append(b, name...)
    return append(b, Separator)
}

// Frame encodes a message for the wire.
func Frame(name, payload string) ([]byte, error) {
    if err := Validate(name); err != nil { return nil, err }
    b := make([]byte, 0, len(name)+1+len(payload))
    b = append(b, name...)
    b = append(b, Separator)
    return append(b, payload...), nil
}

// Parse splits a frame at the first separator. Everything after it,
// including further separators, is returned verbatim as the payload.
func Parse(frame []byte) (name, payload string, err error) {
    i := bytes.IndexByte(frame, Separator)
    if i < 0 {
        return "", "", ErrMalformed
    }
    return string(frame[:i]), string(frame[i+1:]), nil
}

package mesh

import (
    "net"
    "strconv"
)

// probePort asks the OS for a free TCP port on address by opening a
// throwaway listener. The port may be taken again before it is bound.
func probePort(address string) (int, error) {
    l, err := net.Listen("tcp", net.JoinHostPort(address, "0"))
    if err != nil { return 0, err }
    defer l.Close()
    _, ps, err := net.SplitHostPort(l.Addr().String())
    if err != nil { return 0, err }
    return strconv.Atoi(ps)
}

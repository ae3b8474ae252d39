// Package seeds provides bootstrap address sources for the gossip provider:
// a fixed list, DNS names and a watched file or environment variable.
package seeds

import (
    "sort"
    "strings"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

type static struct{ seeds []string }

func (s *static) Seeds() []string { return append([]string(nil), s.seeds...) }

// Static returns a Seeder that always yields the given addresses.
func Static(addrs ...string) discovery.Seeder {
    cleaned := make([]string, 0, len(addrs))
    for _, v := range addrs {
        if v = strings.TrimSpace(v); v != "" { cleaned = append(cleaned, v) }
    }
    return &static{seeds: cleaned}
}

// Parse splits a comma-separated list, dropping blanks.
func Parse(csv string) []string {
    if csv == "" { return nil }
    var out []string
    for _, p := range strings.Split(csv, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

type multi []discovery.Seeder

// Multi merges several sources into one sorted, de-duplicated list.
func Multi(srcs ...discovery.Seeder) discovery.Seeder {
    var m multi
    for _, s := range srcs {
        if s != nil { m = append(m, s) }
    }
    return m
}

func (m multi) Seeds() []string {
    set := make(map[string]struct{})
    for _, s := range m {
        for _, a := range s.Seeds() { set[a] = struct{}{} }
    }
    return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
    if len(set) == 0 { return nil }
    out := make([]string, 0, len(set))
    for s := range set { out = append(out, s) }
    sort.Strings(out)
    return out
}

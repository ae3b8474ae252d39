package seeds

import (
    "bufio"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/benbjohnson/clock"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

// FileOptions configures file/env seeds.
type FileOptions struct {
    // Path holds one address per line (comma lists allowed, '#' comments).
    // Glob patterns merge every matching file.
    Path string
    // Env, when set and non-empty in the environment, overrides Path.
    Env string
    // Refresh is the cache lifetime. Defaults to 5s.
    Refresh time.Duration
    Clock   clock.Clock
}

type fileSeeds struct {
    opts  FileOptions
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

// File returns a Seeder backed by a file or environment variable. The file
// is re-read when it changes or the cache expires.
func File(opts FileOptions) discovery.Seeder {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Clock == nil { opts.Clock = clock.New() }
    return &fileSeeds{opts: opts}
}

func (f *fileSeeds) Seeds() []string {
    f.mu.Lock(); defer f.mu.Unlock()
    if f.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(f.opts.Env)); v != "" { return normalize(Parse(v)) }
    }
    if f.opts.Path == "" { return nil }
    now := f.opts.Clock.Now()
    if st, err := os.Stat(f.opts.Path); err == nil {
        if st.ModTime().After(f.mtime) || now.Sub(f.last) >= f.opts.Refresh {
            f.cache = loadFile(f.opts.Path)
            f.last = now
            f.mtime = st.ModTime()
        }
        return append([]string(nil), f.cache...)
    }
    if now.Sub(f.last) < f.opts.Refresh && f.cache != nil { return append([]string(nil), f.cache...) }
    matches, _ := filepath.Glob(f.opts.Path)
    set := make(map[string]struct{})
    for _, m := range matches {
        for _, s := range loadFile(m) { set[s] = struct{}{} }
    }
    f.cache = sortedKeys(set)
    f.last = now
    return append([]string(nil), f.cache...)
}

func loadFile(path string) []string {
    fh, err := os.Open(path)
    if err != nil { return nil }
    defer fh.Close()
    var out []string
    sc := bufio.NewScanner(fh)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        out = append(out, Parse(line)...)
    }
    if sc.Err() != nil { return nil }
    return normalize(out)
}

func normalize(in []string) []string {
    set := make(map[string]struct{}, len(in))
    for _, s := range in { set[s] = struct{}{} }
    return sortedKeys(set)
}

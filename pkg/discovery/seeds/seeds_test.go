package seeds

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
    cases := []struct {
        in   string
        want []string
    }{
        {"", nil},
        {"a:1", []string{"a:1"}},
        {" a:1 , b:2 ", []string{"a:1", "b:2"}},
        {",,a:1, ,b:2,", []string{"a:1", "b:2"}},
    }
    for _, c := range cases {
        assert.Equal(t, c.want, Parse(c.in), c.in)
    }
}

func TestStatic_Copy(t *testing.T) {
    s := Static(" a:1 ", "", "b:2")
    got := s.Seeds()
    require.Equal(t, []string{"a:1", "b:2"}, got)
    got[0] = "x"
    assert.Equal(t, "a:1", s.Seeds()[0])
}

func TestMulti_Dedup(t *testing.T) {
    m := Multi(Static("b:2", "a:1"), nil, Static("a:1", "c:3"))
    assert.Equal(t, []string{"a:1", "b:2", "c:3"}, m.Seeds())
}

func TestParseSRVName(t *testing.T) {
    s, p, n := parseSRVName("_mesh._tcp.example.com")
    assert.Equal(t, []string{"mesh", "tcp", "example.com"}, []string{s, p, n})
    s, _, _ = parseSRVName("bad.srv")
    assert.Empty(t, s)
    s, _, _ = parseSRVName("host.example.com")
    assert.Empty(t, s)
}

func TestDNS_PassthroughHostPort(t *testing.T) {
    d := DNS(DNSOptions{Names: []string{"1.2.3.4:7946"}})
    assert.Equal(t, []string{"1.2.3.4:7946"}, d.Seeds())
}

func TestDNS_Localhost(t *testing.T) {
    d := DNS(DNSOptions{Names: []string{"localhost"}, Port: 12345})
    got := d.Seeds()
    require.NotEmpty(t, got)
    for _, s := range got { assert.True(t, strings.HasSuffix(s, ":12345"), s) }
}

func TestFile_EnvOverrides(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "seeds.txt")
    require.NoError(t, os.WriteFile(f, []byte("a:1\n"), 0o644))
    t.Setenv("TEST_MESH_SEEDS", "y:8,x:9")
    s := File(FileOptions{Path: f, Env: "TEST_MESH_SEEDS"})
    assert.Equal(t, []string{"x:9", "y:8"}, s.Seeds())
}

func TestFile_RefreshOnExpiry(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "seeds.txt")
    require.NoError(t, os.WriteFile(f, []byte("a:1\n# comment\nb:2, a:1\n"), 0o644))
    mock := clock.NewMock()
    s := File(FileOptions{Path: f, Refresh: time.Minute, Clock: mock})
    assert.Equal(t, []string{"a:1", "b:2"}, s.Seeds())

    // same mtime: stays cached until the refresh window passes
    st, err := os.Stat(f)
    require.NoError(t, err)
    require.NoError(t, os.WriteFile(f, []byte("c:3\n"), 0o644))
    require.NoError(t, os.Chtimes(f, st.ModTime(), st.ModTime()))
    assert.Equal(t, []string{"a:1", "b:2"}, s.Seeds())

    mock.Add(2 * time.Minute)
    assert.Equal(t, []string{"c:3"}, s.Seeds())
}

func TestFile_Glob(t *testing.T) {
    dir := t.TempDir()
    require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a:1\nb:2\n"), 0o644))
    require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b:2\nc:3\n"), 0o644))
    s := File(FileOptions{Path: filepath.Join(dir, "*.txt")})
    assert.Equal(t, []string{"a:1", "b:2", "c:3"}, s.Seeds())
}

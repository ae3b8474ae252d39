package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/spf13/pflag"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const sample = `
node:
  id: n1
  cluster: blue
  port: 9100
discovery:
  kind: gossip
  bind: 127.0.0.1:7946
  join_retry: 2s
  seeds:
    kind: static
    static: 10.0.0.1:7946,10.0.0.2:7946
transport:
  kind: ws
advertise: true
metadata:
  zone: eu
channels: [chat, news]
`

func writeFile(t *testing.T) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), "mesh.yaml")
    require.NoError(t, os.WriteFile(p, []byte(sample), 0o600))
    return p
}

func TestLoad_Defaults(t *testing.T) {
    cfg, err := NewLoader(WithEnvPrefix("MESHTEST_NONE_")).Load()
    require.NoError(t, err)
    assert.Equal(t, "unnamedService", cfg.Node.Service)
    assert.Equal(t, "defaultCluster", cfg.Node.Cluster)
    assert.Equal(t, "grpc", cfg.Transport.Kind)
    assert.Equal(t, ":17946", cfg.AdminAddr)
}

func TestLoad_File(t *testing.T) {
    cfg, err := NewLoader(WithEnvPrefix("MESHTEST_NONE_"), WithConfigFile(writeFile(t))).Load()
    require.NoError(t, err)
    assert.Equal(t, "n1", cfg.Node.ID)
    assert.Equal(t, "blue", cfg.Node.Cluster)
    assert.Equal(t, "unnamedService", cfg.Node.Service)
    assert.Equal(t, 9100, cfg.Node.Port)
    assert.Equal(t, 2*time.Second, cfg.Discovery.JoinRetry)
    assert.Equal(t, "10.0.0.1:7946,10.0.0.2:7946", cfg.Discovery.Seeds.Static)
    assert.Equal(t, "ws", cfg.Transport.Kind)
    assert.True(t, cfg.Advertise)
    assert.Equal(t, map[string]string{"zone": "eu"}, cfg.Metadata)
    assert.Equal(t, []string{"chat", "news"}, cfg.Channels)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
    t.Setenv("MESHT_NODE__CLUSTER", "green")
    t.Setenv("MESHT_NODE__PORT", "9200")
    t.Setenv("MESHT_ADMIN_ADDR", "127.0.0.1:18000")
    t.Setenv("MESHT_CHANNELS", "a,b")
    cfg, err := NewLoader(WithEnvPrefix("MESHT_"), WithConfigFile(writeFile(t))).Load()
    require.NoError(t, err)
    assert.Equal(t, "green", cfg.Node.Cluster)
    assert.Equal(t, 9200, cfg.Node.Port)
    assert.Equal(t, "127.0.0.1:18000", cfg.AdminAddr)
    assert.Equal(t, []string{"a", "b"}, cfg.Channels)
    assert.Equal(t, "n1", cfg.Node.ID)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
    t.Setenv("MESHF_NODE__CLUSTER", "green")
    fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
    fs.String("cluster", "", "")
    fs.String("service", "ignored-default", "")
    fs.StringSlice("subscribe", nil, "")
    require.NoError(t, fs.Parse([]string{"--cluster=red", "--subscribe=x,y"}))

    keys := map[string]string{"cluster": "node.cluster", "service": "node.service", "subscribe": "channels"}
    cfg, err := NewLoader(WithEnvPrefix("MESHF_"), WithFlags(fs, keys)).Load()
    require.NoError(t, err)
    assert.Equal(t, "red", cfg.Node.Cluster)
    assert.Equal(t, "unnamedService", cfg.Node.Service)
    assert.Equal(t, []string{"x", "y"}, cfg.Channels)
}

func TestLoad_InvalidKind(t *testing.T) {
    t.Setenv("MESHI_TRANSPORT__KIND", "carrier-pigeon")
    _, err := NewLoader(WithEnvPrefix("MESHI_")).Load()
    require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
    _, err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))).Load()
    require.Error(t, err)
}

func TestLoad_TypedFlagsOverFile(t *testing.T) {
    fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
    fs.Int("port", 0, "")
    fs.Bool("advertise", false, "")
    fs.StringToString("meta", nil, "")
    fs.Duration("join-retry", time.Second, "")
    fs.String("cluster", "flag-default", "")
    fs.String("unmapped", "", "")
    require.NoError(t, fs.Parse([]string{"--port=9300", "--meta=zone=us,rack=r1", "--join-retry=7s", "--unmapped=x"}))

    keys := map[string]string{
        "port":       "node.port",
        "advertise":  "advertise",
        "meta":       "metadata",
        "join-retry": "discovery.join_retry",
        "cluster":    "node.cluster",
    }
    cfg, err := NewLoader(WithEnvPrefix("MESHTEST_NONE_"), WithConfigFile(writeFile(t)), WithFlags(fs, keys)).Load()
    require.NoError(t, err)
    assert.Equal(t, 9300, cfg.Node.Port)
    assert.Equal(t, map[string]string{"zone": "us", "rack": "r1"}, cfg.Metadata)
    assert.Equal(t, 7*time.Second, cfg.Discovery.JoinRetry)
    assert.Equal(t, "blue", cfg.Node.Cluster)
    assert.True(t, cfg.Advertise)
}

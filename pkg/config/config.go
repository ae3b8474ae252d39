// Package config loads a bootstrap.Config with priority
// Flag > Env > File > Default.
//
// Environment variables carry the MESH_ prefix; a double underscore
// separates nesting levels, so MESH_DISCOVERY__SEEDS__KIND=dns sets
// discovery.seeds.kind and MESH_ADMIN_ADDR sets admin_addr.
package config

import (
    "fmt"
    "strings"

    "github.com/go-viper/mapstructure/v2"
    "github.com/knadh/koanf/parsers/yaml"
    "github.com/knadh/koanf/providers/env"
    "github.com/knadh/koanf/providers/file"
    "github.com/knadh/koanf/providers/posflag"
    "github.com/knadh/koanf/v2"
    "github.com/spf13/pflag"

    "github.com/amirimatin/go-mesh/pkg/bootstrap"
)

const DefaultEnvPrefix = "MESH_"

// Loader collects configuration layers into one koanf instance.
type Loader struct {
    k         *koanf.Koanf
    envPrefix string
    filePath  string
    flags     *pflag.FlagSet
    flagKeys  map[string]string
}

type Option func(*Loader)

func WithEnvPrefix(prefix string) Option { return func(l *Loader) { l.envPrefix = prefix } }

func WithConfigFile(path string) Option { return func(l *Loader) { l.filePath = path } }

// WithFlags layers the changed flags of fs on top. keys maps flag names to
// config keys; flags without an entry are ignored.
func WithFlags(fs *pflag.FlagSet, keys map[string]string) Option {
    return func(l *Loader) { l.flags, l.flagKeys = fs, keys }
}

func NewLoader(opts ...Option) *Loader {
    l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
    for _, o := range opts { o(l) }
    return l
}

// Load returns bootstrap.Default() overlaid with file, env and flags.
func (l *Loader) Load() (bootstrap.Config, error) {
    cfg := bootstrap.Default()
    if l.filePath != "" {
        if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
            return cfg, fmt.Errorf("config: load file %s: %w", l.filePath, err)
        }
    }
    if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
        return cfg, fmt.Errorf("config: load env: %w", err)
    }
    if l.flags != nil {
        if err := l.k.Load(posflag.ProviderWithFlag(l.flags, ".", l.k, l.flagKey), nil); err != nil {
            return cfg, fmt.Errorf("config: load flags: %w", err)
        }
    }
    if err := l.unmarshal(&cfg); err != nil { return cfg, fmt.Errorf("config: unmarshal: %w", err) }
    return cfg, cfg.Validate()
}

// MESH_DISCOVERY__JOIN_RETRY -> discovery.join_retry
func (l *Loader) envKey(s string) string {
    s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
    return strings.ReplaceAll(s, "__", ".")
}

func (l *Loader) unmarshal(target *bootstrap.Config) error {
    return l.k.UnmarshalWithConf("", target, koanf.UnmarshalConf{
        Tag: "koanf",
        DecoderConfig: &mapstructure.DecoderConfig{
            DecodeHook: mapstructure.ComposeDecodeHookFunc(
                mapstructure.StringToTimeDurationHookFunc(),
                mapstructure.StringToSliceHookFunc(","),
            ),
            Result:           target,
            TagName:          "koanf",
            WeaklyTypedInput: true,
        },
    })
}

// Keys lists every loaded key, for debugging.
func (l *Loader) Keys() []string { return l.k.Keys() }

// flagKey maps a changed flag to its config key. Unchanged and unmapped
// flags return "" so defaults never shadow file or env values.
func (l *Loader) flagKey(f *pflag.Flag) (string, any) {
    key, ok := l.flagKeys[f.Name]
    if !ok || !f.Changed { return "", nil }
    return key, posflag.FlagVal(l.flags, f)
}

package offset

import "github.com/spf13/viper"

// ConfigSource abstracts the property lookups SettingsBuilder needs
// (streams.<stream>.samza.offset.default, .reset.offset, and the per-system
// fallback keys) away from any particular configuration library.
type ConfigSource interface {
	GetString(key string) (string, bool)
	GetBool(key string) bool
}

// ViperConfigSource adapts a *viper.Viper to ConfigSource.
type ViperConfigSource struct {
	v *viper.Viper
}

func NewViperConfigSource(v *viper.Viper) *ViperConfigSource {
	return &ViperConfigSource{v: v}
}

func (c *ViperConfigSource) GetString(key string) (string, bool) {
	if !c.v.IsSet(key) {
		return "", false
	}
	return c.v.GetString(key), true
}

func (c *ViperConfigSource) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// StaticConfigSource is an in-memory ConfigSource for tests and simple
// bootstraps that don't need a file-backed configuration tree.
type StaticConfigSource struct {
	Strings map[string]string
	Bools   map[string]bool
}

func NewStaticConfigSource() *StaticConfigSource {
	return &StaticConfigSource{
		Strings: make(map[string]string),
		Bools:   make(map[string]bool),
	}
}

func (c *StaticConfigSource) GetString(key string) (string, bool) {
	v, ok := c.Strings[key]
	return v, ok
}

func (c *StaticConfigSource) GetBool(key string) bool {
	return c.Bools[key]
}

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. EPDTIMELINE_LISTEN.
const EnvPrefix = "EPDTIMELINE"

// NewOverrides returns a viper instance reading EPDTIMELINE_* variables.
// Nested keys use underscores: EPDTIMELINE_TIMELINE_WIDTH.
func NewOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (environment or bound flags)
// over the values loaded from the file.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	strs := map[string]*string{
		"listen":       &c.Listen,
		"timezone":     &c.Timezone,
		"refresh":      &c.RefreshCron,
		"log_level":    &c.LogLevel,
		"cache_dir":    &c.CacheDir,
		"preview_path": &c.PreviewPath,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet("horizon_days") {
		c.HorizonDays = v.GetInt("horizon_days")
	}

	floats := map[string]*float64{
		"timeline.start_hour":       &c.Timeline.StartHour,
		"timeline.end_hour":         &c.Timeline.EndHour,
		"timeline.pixels_per_hour":  &c.Timeline.PixelsPerHour,
		"timeline.width":            &c.Timeline.Width,
		"timeline.inset_left":       &c.Timeline.InsetLeft,
		"timeline.inset_right":      &c.Timeline.InsetRight,
		"timeline.min_event_height": &c.Timeline.MinEventHeight,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	if v.IsSet("basic_auth.username") || v.IsSet("basic_auth.password") {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		if v.IsSet("basic_auth.username") {
			c.BasicAuth.Username = v.GetString("basic_auth.username")
		}
		if v.IsSet("basic_auth.password") {
			c.BasicAuth.Password = v.GetString("basic_auth.password")
		}
	}
}

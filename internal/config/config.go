// Package config assembles runtime configuration from defaults, an optional
// config file, ORBITSCOPE_* environment variables and command-line flags, in
// increasing order of precedence. Invalid values are logged and replaced by
// their defaults; only an unusable auth setup is fatal.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/star/orbitscope/internal/auth"
	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/scene"
	"github.com/star/orbitscope/internal/stream"
	"github.com/star/orbitscope/internal/tle"
)

// EnvPrefix prefixes every environment variable, e.g. ORBITSCOPE_HTTP_ADDR.
const EnvPrefix = "ORBITSCOPE"

// ConfigFileEnv names the environment variable holding a config file path.
const ConfigFileEnv = EnvPrefix + "_CONFIG"

// Config is the complete runtime configuration.
type Config struct {
	HTTP        HTTPConfig
	Auth        auth.Config
	TLE         TLEConfig
	Tracking    tle.ParseOptions
	Scene       scene.Config
	Stream      stream.Config
	Propagation propagation.PropConfig
	Log         LogConfig
}

// HTTPConfig holds listener and request limiting settings.
type HTTPConfig struct {
	Addr         string
	TrustProxy   bool    // honor X-Forwarded-For / X-Real-IP
	RefreshRate  float64 // manual refreshes per second per IP
	RefreshBurst int
}

// TLEConfig holds catalog source and disk cache settings.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration // refresh interval
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level slog.Level
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	sc := scene.DefaultConfig()
	st := stream.DefaultConfig()
	po := tle.DefaultParseOptions()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.refresh_rate", 1.0/60)
	v.SetDefault("http.refresh_burst", 2)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("tle.enable_fetch", true)
	v.SetDefault("tle.source_url", tle.DefaultSourceURL)
	v.SetDefault("tle.extra_urls", []string{})
	v.SetDefault("tle.cache_dir", "/tmp/orbitscope/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.max_age", "24h")

	v.SetDefault("tracking.century_pivot", po.CenturyPivot)
	v.SetDefault("tracking.max_objects", po.MaxObjects)

	v.SetDefault("scene.earth_radius_km", sc.EarthRadiusKm)
	v.SetDefault("scene.sidereal_day_seconds", sc.SiderealDaySeconds)
	v.SetDefault("scene.frame_rate", sc.FrameRate)
	v.SetDefault("scene.history_size", sc.HistorySize)
	v.SetDefault("scene.align_earth_rotation", sc.AlignEarthRotation)
	v.SetDefault("scene.earth_texture_url", sc.EarthTextureURL)
	v.SetDefault("scene.stars_texture_url", sc.StarsTextureURL)

	v.SetDefault("stream.max_concurrent_per_ip", st.MaxConcurrentPerIP)
	v.SetDefault("stream.max_total", st.MaxTotal)
	v.SetDefault("stream.bandwidth_limit", st.BandwidthLimit)
	v.SetDefault("stream.keepalive_interval", st.KeepaliveInterval.String())
	v.SetDefault("stream.max_frame_rate", st.MaxFrameRate)

	v.SetDefault("propagation.workers", runtime.NumCPU())

	v.SetDefault("log.level", "debug")
}

// ReadFile merges the config file at path into v. An empty path falls back to
// the ORBITSCOPE_CONFIG environment variable; if both are empty nothing is read.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		path = v.GetString("config")
	}
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// Load resolves the full configuration from v.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	l := loader{v: v, logger: logger}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:         l.str("http.addr"),
			TrustProxy:   l.boolean("http.trust_proxy"),
			RefreshRate:  l.positiveFloat("http.refresh_rate"),
			RefreshBurst: l.positiveInt("http.refresh_burst"),
		},
		TLE: TLEConfig{
			EnableFetch:     l.boolean("tle.enable_fetch"),
			SourceURL:       l.str("tle.source_url"),
			ExtraSourceURLs: l.list("tle.extra_urls"),
			CacheDir:        l.str("tle.cache_dir"),
			MaxFiles:        l.positiveInt("tle.max_files"),
			MaxAge:          l.duration("tle.max_age"),
		},
		Tracking: tle.ParseOptions{
			CenturyPivot: l.intRange("tracking.century_pivot", 0, 100),
			MaxObjects:   l.integer("tracking.max_objects"),
		},
		Scene: scene.Config{
			EarthRadiusKm:      l.positiveFloat("scene.earth_radius_km"),
			SiderealDaySeconds: l.positiveFloat("scene.sidereal_day_seconds"),
			FrameRate:          l.positiveFloat("scene.frame_rate"),
			HistorySize:        l.intRange("scene.history_size", 0, 3600),
			AlignEarthRotation: l.boolean("scene.align_earth_rotation"),
			EarthTextureURL:    l.str("scene.earth_texture_url"),
			StarsTextureURL:    l.str("scene.stars_texture_url"),
		},
		Stream: stream.Config{
			MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent_per_ip"),
			MaxTotal:           l.positiveInt("stream.max_total"),
			BandwidthLimit:     l.intRange("stream.bandwidth_limit", 0, 1<<30),
			KeepaliveInterval:  l.duration("stream.keepalive_interval"),
			MaxFrameRate:       l.positiveFloat("stream.max_frame_rate"),
		},
		Propagation: propagation.PropConfig{
			Workers: l.positiveInt("propagation.workers"),
		},
		Log: LogConfig{
			Level: l.level("log.level"),
		},
	}
	cfg.Stream.TrustProxy = cfg.HTTP.TrustProxy

	authCfg, err := loadAuth(v)
	if err != nil {
		return cfg, err
	}
	cfg.Auth = authCfg

	logger.Info("configuration loaded",
		"config_file", v.ConfigFileUsed(),
		"addr", cfg.HTTP.Addr,
		"auth_enabled", cfg.Auth.Enabled,
		"tle_fetch_enabled", cfg.TLE.EnableFetch,
		"source_url", cfg.TLE.SourceURL,
		"extra_urls", cfg.TLE.ExtraSourceURLs,
		"cache_dir", cfg.TLE.CacheDir,
		"max_objects", cfg.Tracking.MaxObjects,
		"century_pivot", cfg.Tracking.CenturyPivot,
		"frame_rate", cfg.Scene.FrameRate,
		"workers", cfg.Propagation.Workers,
	)

	return cfg, nil
}

func loadAuth(v *viper.Viper) (auth.Config, error) {
	cfg := auth.Config{}

	enabled, err := cast.ToBoolE(v.Get("auth.enabled"))
	if err != nil {
		return cfg, errors.New("auth.enabled must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled

	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("auth.token is required when auth is enabled")
		}
	}

	return cfg, nil
}

// loader reads typed keys, warning and falling back to the registered
// default on invalid input.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
	def    *viper.Viper
}

func (l *loader) defaults() *viper.Viper {
	if l.def == nil {
		l.def = viper.New()
		setDefaults(l.def)
	}
	return l.def
}

func (l *loader) warn(key string, value any) {
	l.logger.Warn("invalid configuration value, using default",
		"key", key,
		"value", value,
		"default", l.defaults().Get(key),
	)
}

func (l *loader) str(key string) string {
	return l.v.GetString(key)
}

func (l *loader) boolean(key string) bool {
	b, err := cast.ToBoolE(l.v.Get(key))
	if err != nil {
		l.warn(key, l.v.Get(key))
		return l.defaults().GetBool(key)
	}
	return b
}

func (l *loader) integer(key string) int {
	n, err := cast.ToIntE(l.v.Get(key))
	if err != nil {
		l.warn(key, l.v.Get(key))
		return l.defaults().GetInt(key)
	}
	return n
}

func (l *loader) positiveInt(key string) int {
	return l.intRange(key, 1, int(^uint(0)>>1))
}

func (l *loader) intRange(key string, lo, hi int) int {
	n, err := cast.ToIntE(l.v.Get(key))
	if err != nil || n < lo || n > hi {
		l.warn(key, l.v.Get(key))
		return l.defaults().GetInt(key)
	}
	return n
}

func (l *loader) positiveFloat(key string) float64 {
	f, err := cast.ToFloat64E(l.v.Get(key))
	if err != nil || f <= 0 {
		l.warn(key, l.v.Get(key))
		return l.defaults().GetFloat64(key)
	}
	return f
}

// duration accepts Go duration strings ("90s", "24h") or bare integers,
// which are read as seconds.
func (l *loader) duration(key string) time.Duration {
	d, err := parseDuration(l.v.Get(key))
	if err != nil || d <= 0 {
		l.warn(key, l.v.Get(key))
		d, _ = parseDuration(l.defaults().Get(key))
	}
	return d
}

func parseDuration(raw any) (time.Duration, error) {
	switch val := raw.(type) {
	case time.Duration:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(s)
	default:
		n, err := cast.ToIntE(raw)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
}

// list accepts a sequence or a comma-separated string.
func (l *loader) list(key string) []string {
	var raw []string
	switch val := l.v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	default:
		raw = cast.ToStringSlice(val)
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (l *loader) level(key string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.v.GetString(key))); err != nil {
		l.warn(key, l.v.Get(key))
		return slog.LevelDebug
	}
	return lvl
}

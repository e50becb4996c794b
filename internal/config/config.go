// Package config loads and validates toolshots configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob of a synchronization run.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Limiter     LimiterConfig     `mapstructure:"limiter"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Manifest    ManifestConfig    `mapstructure:"manifest"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CatalogConfig lists the tool catalog documents and how to fetch them.
type CatalogConfig struct {
	Sources   []string      `mapstructure:"sources"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ScreenshotsConfig locates screenshots on disk and defines staleness.
type ScreenshotsConfig struct {
	Dir    string        `mapstructure:"dir"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// CaptureConfig configures rendering and thumbnail downloads.
type CaptureConfig struct {
	Width                int           `mapstructure:"width"`
	Height               int           `mapstructure:"height"`
	ScaleFactor          float64       `mapstructure:"scale_factor"`
	ImageType            string        `mapstructure:"image_type"`
	Quality              float64       `mapstructure:"quality"`
	Timeout              time.Duration `mapstructure:"timeout"`
	Overwrite            bool          `mapstructure:"overwrite"`
	DarkMode             bool          `mapstructure:"dark_mode"`
	FullPage             bool          `mapstructure:"full_page"`
	WaitUntilNetworkIdle bool          `mapstructure:"wait_until_network_idle"`
	SettleDelay          time.Duration `mapstructure:"settle_delay"`
	SelectorsFile        string        `mapstructure:"selectors_file"`
	ThumbnailBase        string        `mapstructure:"thumbnail_base"`
	Headless             bool          `mapstructure:"headless"`
	ChromePath           string        `mapstructure:"chrome_path"`
	NoSandbox            bool          `mapstructure:"no_sandbox"`
	UserAgent            string        `mapstructure:"user_agent"`
}

// LimiterConfig bounds and paces capture operations process-wide.
type LimiterConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MinTime       time.Duration `mapstructure:"min_time"`
}

// PipelineConfig controls how many tools are processed at once.
type PipelineConfig struct {
	ToolConcurrency int `mapstructure:"tool_concurrency"`
}

// UploadConfig selects the CDN provider and its credentials.
type UploadConfig struct {
	Provider        string         `mapstructure:"provider"`
	UniqueNames     bool           `mapstructure:"unique_names"`
	BackfillMissing bool           `mapstructure:"backfill_missing"`
	ImageKit        ImageKitConfig `mapstructure:"imagekit"`
	GCS             GCSConfig      `mapstructure:"gcs"`
	Local           LocalConfig    `mapstructure:"local"`
}

// ImageKitConfig holds ImageKit API credentials.
type ImageKitConfig struct {
	PublicKey      string        `mapstructure:"public_key"`
	PrivateKey     string        `mapstructure:"private_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	URLEndpoint    string        `mapstructure:"url_endpoint"`
	UniqueFileName bool          `mapstructure:"unique_file_name"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// GCSConfig names the bucket screenshots are published to.
type GCSConfig struct {
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	CacheControl  string `mapstructure:"cache_control"`
}

// LocalConfig publishes into a directory served at BaseURL.
type LocalConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// ManifestConfig locates screenshots.json.
type ManifestConfig struct {
	Path string `mapstructure:"path"`
}

// NotifyConfig holds optional completion notifications.
type NotifyConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for run summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the end-of-run Pushgateway push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from defaults, an optional file and the environment.
// It does not validate; callers decide which checks a command needs.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOOLSHOTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// bindLegacyEnv keeps the ImageKit variable names existing deployments already export.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"upload.imagekit.public_key":  {"TOOLSHOTS_UPLOAD_IMAGEKIT_PUBLIC_KEY", "IMAGEKIT_PUBLIC_KEY"},
		"upload.imagekit.private_key": {"TOOLSHOTS_UPLOAD_IMAGEKIT_PRIVATE_KEY", "IMAGEKIT_PRIVATE_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("catalog.sources", []string{
		"https://raw.githubusercontent.com/analysis-tools-dev/static-analysis/master/data/api/tools.json",
		"https://raw.githubusercontent.com/analysis-tools-dev/dynamic-analysis/master/data/api/tools.json",
	})
	v.SetDefault("catalog.user_agent", "toolshots/1.0")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("screenshots.dir", "screenshots")
	v.SetDefault("screenshots.max_age", 5*24*time.Hour)
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 800)
	v.SetDefault("capture.scale_factor", 1.0)
	v.SetDefault("capture.image_type", "jpeg")
	v.SetDefault("capture.quality", 0.95)
	v.SetDefault("capture.timeout", 20*time.Second)
	v.SetDefault("capture.overwrite", true)
	v.SetDefault("capture.dark_mode", true)
	v.SetDefault("capture.full_page", false)
	v.SetDefault("capture.wait_until_network_idle", true)
	v.SetDefault("capture.settle_delay", 500*time.Millisecond)
	v.SetDefault("capture.selectors_file", "")
	v.SetDefault("capture.thumbnail_base", "http://img.youtube.com/vi")
	v.SetDefault("capture.headless", true)
	v.SetDefault("capture.chrome_path", "")
	v.SetDefault("capture.no_sandbox", false)
	v.SetDefault("capture.user_agent", "")
	v.SetDefault("limiter.max_concurrent", 4)
	v.SetDefault("limiter.min_time", 500*time.Millisecond)
	v.SetDefault("pipeline.tool_concurrency", 4)
	v.SetDefault("upload.provider", "imagekit")
	v.SetDefault("upload.unique_names", false)
	v.SetDefault("upload.backfill_missing", true)
	v.SetDefault("upload.imagekit.public_key", "")
	v.SetDefault("upload.imagekit.private_key", "")
	v.SetDefault("upload.imagekit.endpoint", "https://upload.imagekit.io/api/v1/")
	v.SetDefault("upload.imagekit.url_endpoint", "")
	v.SetDefault("upload.imagekit.unique_file_name", false)
	v.SetDefault("upload.imagekit.timeout", 60*time.Second)
	v.SetDefault("upload.gcs.bucket", "")
	v.SetDefault("upload.gcs.public_base_url", "")
	v.SetDefault("upload.gcs.cache_control", "public, max-age=86400")
	v.SetDefault("upload.local.dir", "")
	v.SetDefault("upload.local.base_url", "")
	v.SetDefault("manifest.path", "screenshots.json")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "toolshots")
}

// Validate enforces required values and reasonable limits.
// Failures are returned as *ConfigError.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		field  string
		reason string
	}{
		{len(c.Catalog.Sources) == 0, "catalog.sources", "at least one source is required"},
		{c.Catalog.Timeout <= 0, "catalog.timeout", "must be > 0"},
		{strings.TrimSpace(c.Screenshots.Dir) == "", "screenshots.dir", "is required"},
		{c.Screenshots.MaxAge <= 0, "screenshots.max_age", "must be > 0"},
		{c.Capture.Width <= 0, "capture.width", "must be > 0"},
		{c.Capture.Height <= 0, "capture.height", "must be > 0"},
		{c.Capture.ScaleFactor <= 0, "capture.scale_factor", "must be > 0"},
		{!validImageType(c.Capture.ImageType), "capture.image_type", "must be jpeg, png or webp"},
		{c.Capture.Quality <= 0 || c.Capture.Quality > 1, "capture.quality", "must be in (0, 1]"},
		{c.Capture.Timeout <= 0, "capture.timeout", "must be > 0"},
		{c.Capture.SettleDelay < 0, "capture.settle_delay", "must be >= 0"},
		{c.Limiter.MaxConcurrent <= 0, "limiter.max_concurrent", "must be > 0"},
		{c.Limiter.MinTime < 0, "limiter.min_time", "must be >= 0"},
		{c.Upload.ImageKit.Timeout < 0, "upload.imagekit.timeout", "must be >= 0"},
		{c.Pipeline.ToolConcurrency <= 0, "pipeline.tool_concurrency", "must be > 0"},
		{strings.TrimSpace(c.Manifest.Path) == "", "manifest.path", "is required"},
		{
			(c.Notify.PubSub.ProjectID == "") != (c.Notify.PubSub.Topic == ""),
			"notify.pubsub", "project_id and topic must be set together",
		},
	}
	for _, check := range checks {
		if check.bad {
			return &ConfigError{Field: check.field, Reason: check.reason}
		}
	}
	return c.validateUpload()
}

func (c Config) validateUpload() error {
	switch strings.ToLower(c.Upload.Provider) {
	case "imagekit":
		if c.Upload.ImageKit.PublicKey == "" || c.Upload.ImageKit.PrivateKey == "" {
			return &ConfigError{
				Field:  "upload.imagekit",
				Reason: "set IMAGEKIT_PUBLIC_KEY and IMAGEKIT_PRIVATE_KEY",
			}
		}
	case "gcs":
		if c.Upload.GCS.Bucket == "" {
			return &ConfigError{Field: "upload.gcs.bucket", Reason: "is required for the gcs provider"}
		}
	case "local":
		if c.Upload.Local.Dir == "" {
			return &ConfigError{Field: "upload.local.dir", Reason: "is required for the local provider"}
		}
	case "memory":
	default:
		return &ConfigError{
			Field:  "upload.provider",
			Reason: fmt.Sprintf("unknown provider %q", c.Upload.Provider),
		}
	}
	return nil
}

// NotifyEnabled reports whether run summaries should be published.
func (c Config) NotifyEnabled() bool {
	return c.Notify.PubSub.ProjectID != "" && c.Notify.PubSub.Topic != ""
}

func validImageType(t string) bool {
	switch t {
	case "jpeg", "png", "webp":
		return true
	default:
		return false
	}
}

// ConfigError reports a missing or out-of-range setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

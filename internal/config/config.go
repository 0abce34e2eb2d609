package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Tracking  TrackingConfig
	S3        S3Config
	Transport TransportConfig
	Target    TargetConfig
	Discovery DiscoveryConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Host string
	Port int
	// AllowLocalPaths lets API callers use file:// targets, local artifact
	// paths and search roots on the server's own filesystem.
	AllowLocalPaths bool
}

type LoggerConfig struct {
	Level  string
	Format string
}

// TrackingConfig selects where models:/ references are resolved.
// Backend is "mlflow" (REST) or "postgres" (MLflow backend store).
type TrackingConfig struct {
	Backend string
	URL     string
	Token   string
	DSN     string
	Timeout time.Duration
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

type TransportConfig struct {
	MaxVersionAttempts int
	CopyConcurrency    int
	VerifyDigest       bool
	KnownHostsPath     string
	InsecureHostKey    bool
}

// TargetConfig holds defaults applied to targets that do not set them.
type TargetConfig struct {
	DefaultUser    string
	DefaultPort    int
	DefaultBaseDir string
	ConfigDir      string
	DefaultKeys    []string
	Timeout        time.Duration
	MaxRetries     int
}

type DiscoveryConfig struct {
	SearchRoots []string
	StagingDir  string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ALLOW_LOCAL_PATHS", false)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	v.SetDefault("TRACKING_BACKEND", "mlflow")
	v.SetDefault("TRACKING_URL", "http://localhost:5000")
	v.SetDefault("TRACKING_TOKEN", "")
	v.SetDefault("TRACKING_DSN", "")
	v.SetDefault("TRACKING_TIMEOUT", "30s")

	v.SetDefault("S3_ENABLED", false)
	v.SetDefault("S3_ENDPOINT", "localhost:9000")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_REGION", "")
	v.SetDefault("S3_SECURE", false)

	v.SetDefault("TRANSPORT_MAX_VERSION_ATTEMPTS", 5)
	v.SetDefault("TRANSPORT_COPY_CONCURRENCY", 4)
	v.SetDefault("TRANSPORT_VERIFY_DIGEST", false)
	v.SetDefault("TRANSPORT_KNOWN_HOSTS", "~/.ssh/known_hosts")
	v.SetDefault("TRANSPORT_INSECURE_HOST_KEY", false)

	v.SetDefault("TARGET_DEFAULT_USER", "newcastleuni")
	v.SetDefault("TARGET_DEFAULT_PORT", 22)
	v.SetDefault("TARGET_DEFAULT_BASE_DIR", "/home/newcastleuni/mlflow_deployments")
	v.SetDefault("TARGET_CONFIG_DIR", "deployment_configs")
	v.SetDefault("TARGET_DEFAULT_KEYS", "~/.ssh/jetson_key,~/.ssh/id_rsa,~/.ssh/id_ed25519")
	v.SetDefault("TARGET_TIMEOUT", "120s")
	v.SetDefault("TARGET_MAX_RETRIES", 3)

	v.SetDefault("DISCOVERY_SEARCH_ROOTS", "jetson,models,jetson/docker")
	v.SetDefault("STAGING_DIR", "")

	v.SetDefault("METRICS_ENABLED", true)

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			AllowLocalPaths: v.GetBool("SERVER_ALLOW_LOCAL_PATHS"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Tracking: TrackingConfig{
			Backend: strings.ToLower(v.GetString("TRACKING_BACKEND")),
			URL:     strings.TrimRight(v.GetString("TRACKING_URL"), "/"),
			Token:   v.GetString("TRACKING_TOKEN"),
			DSN:     v.GetString("TRACKING_DSN"),
			Timeout: parseDuration(v.GetString("TRACKING_TIMEOUT"), 30*time.Second),
		},
		S3: S3Config{
			Enabled:   v.GetBool("S3_ENABLED"),
			Endpoint:  v.GetString("S3_ENDPOINT"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			Region:    v.GetString("S3_REGION"),
			Secure:    v.GetBool("S3_SECURE"),
		},
		Transport: TransportConfig{
			MaxVersionAttempts: v.GetInt("TRANSPORT_MAX_VERSION_ATTEMPTS"),
			CopyConcurrency:    v.GetInt("TRANSPORT_COPY_CONCURRENCY"),
			VerifyDigest:       v.GetBool("TRANSPORT_VERIFY_DIGEST"),
			KnownHostsPath:     v.GetString("TRANSPORT_KNOWN_HOSTS"),
			InsecureHostKey:    v.GetBool("TRANSPORT_INSECURE_HOST_KEY"),
		},
		Target: TargetConfig{
			DefaultUser:    v.GetString("TARGET_DEFAULT_USER"),
			DefaultPort:    v.GetInt("TARGET_DEFAULT_PORT"),
			DefaultBaseDir: v.GetString("TARGET_DEFAULT_BASE_DIR"),
			ConfigDir:      v.GetString("TARGET_CONFIG_DIR"),
			DefaultKeys:    splitList(v.GetString("TARGET_DEFAULT_KEYS")),
			Timeout:        parseDuration(v.GetString("TARGET_TIMEOUT"), 120*time.Second),
			MaxRetries:     v.GetInt("TARGET_MAX_RETRIES"),
		},
		Discovery: DiscoveryConfig{
			SearchRoots: splitList(v.GetString("DISCOVERY_SEARCH_ROOTS")),
			StagingDir:  v.GetString("STAGING_DIR"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	if cfg.Transport.MaxVersionAttempts < 1 {
		cfg.Transport.MaxVersionAttempts = 1
	}
	if cfg.Transport.CopyConcurrency < 1 {
		cfg.Transport.CopyConcurrency = 1
	}

	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

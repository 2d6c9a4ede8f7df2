package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/aquilu/jacobo/internal/datasource"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/state"
)

// EnvPrefix prefixes every environment override, e.g. BLAA_MODEL_PATH.
const EnvPrefix = "BLAA"

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Log       LogConfig         `mapstructure:"log"`
	Model     model.Config      `mapstructure:"model"`
	Reconcile ReconcileConfig   `mapstructure:"reconcile"`
	Source    datasource.Config `mapstructure:"source"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxUploadMB   int64         `mapstructure:"max_upload_mb"`
	PreviewRows   int           `mapstructure:"preview_rows"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ReconcileConfig struct {
	Threshold  float64           `mapstructure:"threshold"`
	Similarity string            `mapstructure:"similarity"`
	FoldCase   bool              `mapstructure:"fold_case"`
	Synonyms   map[string]string `mapstructure:"synonyms"`
}

// Options builds reconciler options, resolving the similarity metric.
func (c ReconcileConfig) Options() (reconcile.Options, error) {
	sim, err := reconcile.SimilarityByName(c.Similarity)
	if err != nil {
		return reconcile.Options{}, err
	}
	return reconcile.Options{
		Synonyms:   c.Synonyms,
		Threshold:  c.Threshold,
		Similarity: sim,
		FoldCase:   c.FoldCase,
	}, nil
}

// MaxUploadBytes converts the upload limit.
func (c ServerConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8001")
	v.SetDefault("server.session_ttl", state.DefaultTTL)
	v.SetDefault("server.sweep_interval", 10*time.Minute)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.preview_rows", 10)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("model.kind", model.KindLogistic)
	v.SetDefault("model.path", "models/modelo_blaa.json")
	v.SetDefault("model.name", "")
	v.SetDefault("model.ort_library", "")
	v.SetDefault("model.vocabulary", "")
	v.SetDefault("model.input_name", "")
	v.SetDefault("model.output_name", "")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.timeout", 30*time.Second)

	v.SetDefault("reconcile.threshold", reconcile.DefaultThreshold)
	v.SetDefault("reconcile.similarity", reconcile.MetricGestalt)
	v.SetDefault("reconcile.fold_case", false)
	v.SetDefault("reconcile.synonyms", map[string]string{})

	v.SetDefault("source.driver", datasource.DriverSQLite)
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.max_rows", 10000)
}

// Load reads configuration from path, or ./config.yaml when path is empty
// and that file exists, then applies BLAA_* environment overrides. PORT is
// honoured for the listen port.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if c.Server.PreviewRows <= 0 {
		c.Server.PreviewRows = 10
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Reconcile.Threshold <= 0 || c.Reconcile.Threshold > 1 {
		return fmt.Errorf("reconcile.threshold must be in (0,1], got %v", c.Reconcile.Threshold)
	}
	if _, err := reconcile.SimilarityByName(c.Reconcile.Similarity); err != nil {
		return fmt.Errorf("reconcile.similarity: %w", err)
	}
	switch strings.ToLower(c.Model.Kind) {
	case model.KindLogistic, model.KindONNX, model.KindRemote:
	default:
		return fmt.Errorf("model.kind must be one of logistic, onnx, remote, got %q", c.Model.Kind)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	port := strings.TrimPrefix(c.Server.Port, ":")
	return ":" + port
}

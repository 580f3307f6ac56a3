// Initializing common application configuration
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	AppVersion   string        `mapstructure:"app_version"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Idle_timeout time.Duration `mapstructure:"idle_timeout"`
	Mode         string        `mapstructure:"mode"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

type PipelineConfig struct {
	Backend        string            `mapstructure:"backend"`
	Preload        bool              `mapstructure:"preload"`
	MaxConcurrency int64             `mapstructure:"max_concurrency"`
	Remote         RemoteConfig      `mapstructure:"remote"`
	Replicate      ReplicateConfig   `mapstructure:"replicate"`
	HuggingFace    HuggingFaceConfig `mapstructure:"huggingface"`
	Gemini         GeminiConfig      `mapstructure:"gemini"`
}

type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ReplicateConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIToken     string        `mapstructure:"api_token"`
	Version      string        `mapstructure:"version"`
	Scheduler    string        `mapstructure:"scheduler"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
}

type HuggingFaceConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIToken string `mapstructure:"api_token"`
	Model    string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.timeout", 0)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("pipeline.backend", "builtin")
	v.SetDefault("pipeline.preload", true)
	v.SetDefault("pipeline.max_concurrency", 1)

	v.SetDefault("pipeline.remote.base_url", "http://localhost:8001")
	v.SetDefault("pipeline.remote.timeout", 10*time.Minute)

	v.SetDefault("pipeline.replicate.base_url", "https://api.replicate.com")
	v.SetDefault("pipeline.replicate.api_token", "")
	v.SetDefault("pipeline.replicate.version", "95b7223104132402a9ae91cc677285bc5eb997834bd2349fa486f53910fd68b3")
	v.SetDefault("pipeline.replicate.scheduler", "K_EULER")
	v.SetDefault("pipeline.replicate.poll_interval", 2*time.Second)
	v.SetDefault("pipeline.replicate.max_polls", 60)

	v.SetDefault("pipeline.huggingface.base_url", "https://api-inference.huggingface.co")
	v.SetDefault("pipeline.huggingface.api_token", "")
	v.SetDefault("pipeline.huggingface.model", "runwayml/stable-diffusion-inpainting")

	v.SetDefault("pipeline.gemini.api_key", "")
	v.SetDefault("pipeline.gemini.model", "gemini-2.5-flash-image")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "./storage")

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "inpaint-events")
}

// LoadConfig reads config/config.yaml when present. Every key can be overridden
// from the environment as INPAINT_<SECTION>_<KEY>, e.g. INPAINT_SERVER_PORT.
func LoadConfig() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using environment variables")
	}

	viperInstance := viper.New()
	setDefaults(viperInstance)

	viperInstance.AddConfigPath("./config")
	viperInstance.AddConfigPath(".")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix("INPAINT")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		logrus.Warn("config file not found, using defaults")
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, err
	}

	if c.Pipeline.Gemini.APIKey == "" {
		c.Pipeline.Gemini.APIKey = GetEnv("GEMINI_API_KEY", "")
	}
	if c.Pipeline.Replicate.APIToken == "" {
		c.Pipeline.Replicate.APIToken = GetEnv("REPLICATE_API_TOKEN", "")
	}
	if c.Pipeline.HuggingFace.APIToken == "" {
		c.Pipeline.HuggingFace.APIToken = GetEnv("HF_TOKEN", "")
	}
	return &c, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

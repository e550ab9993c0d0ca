package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Ingest      IngestConfig    `yaml:"ingest"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// SynthesisConfig selects and parameterizes the speech backend. Mode "aivis"
// talks to the Aivis Cloud API, "exec" bridges to a local command, "mock"
// returns a canned payload.
type SynthesisConfig struct {
	Mode         string `yaml:"mode"`
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	ModelUUID    string `yaml:"model_uuid"`
	OutputFormat string `yaml:"output_format"`
	Command      string `yaml:"command"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

type PlaybackConfig struct {
	Transport          string  `yaml:"transport"` // local or mock
	PollIntervalMS     int     `yaml:"poll_interval_ms"`
	QueuePreview       int     `yaml:"queue_preview"`
	TenantVolume       float64 `yaml:"tenant_volume"`
	DefaultRate        float64 `yaml:"default_rate"`
	AnnouncementVolume float64 `yaml:"announcement_volume"`
}

type IngestConfig struct {
	SkipKeyword           string `yaml:"skip_keyword"`
	URLPlaceholder        string `yaml:"url_placeholder"`
	AttachmentPlaceholder string `yaml:"attachment_placeholder"`
}

func Default() Config {
	return Config{
		RuntimeName: "yomi-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path: "./data/yomi.db",
		},
		Synthesis: SynthesisConfig{
			Mode:         "aivis",
			Endpoint:     "https://api.aivis-project.com/v1/tts/synthesize",
			ModelUUID:    "a59cb814-0083-4369-8542-f51a29e72af7",
			OutputFormat: "mp3",
			TimeoutMS:    30000,
		},
		Playback: PlaybackConfig{
			Transport:          "local",
			PollIntervalMS:     500,
			QueuePreview:       10,
			TenantVolume:       0.75,
			DefaultRate:        1.1,
			AnnouncementVolume: 1.0,
		},
		Ingest: IngestConfig{
			SkipKeyword:           "s",
			URLPlaceholder:        "URL",
			AttachmentPlaceholder: "attachment",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "YOMI_RUNTIME_NAME")
	overrideString(&cfg.Environment, "YOMI_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "YOMI_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "YOMI_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "YOMI_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "YOMI_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "YOMI_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "YOMI_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "YOMI_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "YOMI_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "YOMI_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "YOMI_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "YOMI_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "YOMI_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "YOMI_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "YOMI_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "YOMI_STORE_PATH")
	overrideString(&cfg.Synthesis.Mode, "YOMI_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Endpoint, "YOMI_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.APIKey, "YOMI_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.ModelUUID, "YOMI_SYNTHESIS_MODEL_UUID")
	overrideString(&cfg.Synthesis.OutputFormat, "YOMI_SYNTHESIS_OUTPUT_FORMAT")
	overrideString(&cfg.Synthesis.Command, "YOMI_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.TimeoutMS, "YOMI_SYNTHESIS_TIMEOUT_MS")
	overrideString(&cfg.Playback.Transport, "YOMI_PLAYBACK_TRANSPORT")
	overrideInt(&cfg.Playback.PollIntervalMS, "YOMI_PLAYBACK_POLL_INTERVAL_MS")
	overrideInt(&cfg.Playback.QueuePreview, "YOMI_PLAYBACK_QUEUE_PREVIEW")
	overrideFloat(&cfg.Playback.TenantVolume, "YOMI_PLAYBACK_TENANT_VOLUME")
	overrideFloat(&cfg.Playback.DefaultRate, "YOMI_PLAYBACK_DEFAULT_RATE")
	overrideFloat(&cfg.Playback.AnnouncementVolume, "YOMI_PLAYBACK_ANNOUNCEMENT_VOLUME")
	overrideString(&cfg.Ingest.SkipKeyword, "YOMI_INGEST_SKIP_KEYWORD")
	overrideString(&cfg.Ingest.URLPlaceholder, "YOMI_INGEST_URL_PLACEHOLDER")
	overrideString(&cfg.Ingest.AttachmentPlaceholder, "YOMI_INGEST_ATTACHMENT_PLACEHOLDER")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Synthesis.Mode {
	case "aivis", "exec", "mock":
	default:
		return errors.New("synthesis.mode must be one of aivis|exec|mock")
	}
	if cfg.Synthesis.Mode == "aivis" {
		if cfg.Synthesis.Endpoint == "" {
			return errors.New("synthesis.endpoint must be set when mode=aivis")
		}
		if cfg.Synthesis.ModelUUID == "" {
			return errors.New("synthesis.model_uuid must be set when mode=aivis")
		}
	}
	if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if cfg.Synthesis.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	switch cfg.Playback.Transport {
	case "local", "mock":
	default:
		return errors.New("playback.transport must be one of local|mock")
	}
	if cfg.Playback.PollIntervalMS <= 0 {
		return errors.New("playback.poll_interval_ms must be positive")
	}
	if cfg.Playback.QueuePreview <= 0 {
		return errors.New("playback.queue_preview must be positive")
	}
	if cfg.Playback.TenantVolume < 0 || cfg.Playback.TenantVolume > 2 {
		return errors.New("playback.tenant_volume must be between 0.0 and 2.0")
	}
	if cfg.Playback.DefaultRate < 0.5 || cfg.Playback.DefaultRate > 2 {
		return errors.New("playback.default_rate must be between 0.5 and 2.0")
	}
	if cfg.Playback.AnnouncementVolume < 0 || cfg.Playback.AnnouncementVolume > 2 {
		return errors.New("playback.announcement_volume must be between 0.0 and 2.0")
	}
	if cfg.Ingest.SkipKeyword == "" {
		return errors.New("ingest.skip_keyword must not be empty")
	}
	return nil
}

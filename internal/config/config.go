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
	LogFile        string `yaml:"log_file"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	LogMaxBackups  int    `yaml:"log_max_backups"`
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
	Gateway     GatewayConfig   `yaml:"gateway"`
	Capture     CaptureConfig   `yaml:"capture"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Voice       VoiceConfig     `yaml:"voice"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type GatewayConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Author         string `yaml:"author"`
	OutputLanguage string `yaml:"output_language"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

type CaptureConfig struct {
	Mode              string `yaml:"mode"` // mock, exec
	CaptureCommand    string `yaml:"capture_command"`
	TranscribeCommand string `yaml:"transcribe_command"`
	ModelPath         string `yaml:"model_path"`
	Language          string `yaml:"language"`
	Device            string `yaml:"device"`
	SampleRate        int    `yaml:"sample_rate"`
	Channels          int    `yaml:"channels"`
	MaxUtteranceMS    int    `yaml:"max_utterance_ms"`
}

type PlaybackConfig struct {
	Mode               string `yaml:"mode"` // media, exec
	Command            string `yaml:"command"`
	CacheDir           string `yaml:"cache_dir"`
	PositionIntervalMS int    `yaml:"position_interval_ms"`
	Autoplay           bool   `yaml:"autoplay"`
}

type VoiceConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DefaultIdentity string `yaml:"default_identity"`
}

func Default() Config {
	return Config{
		RuntimeName: "geeta-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogMaxSizeMB:   50,
			LogMaxBackups:  3,
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path: "./data/geeta-conversations.db",
		},
		Gateway: GatewayConfig{
			Endpoint:       "http://127.0.0.1:8000",
			Author:         "Swami Sivananda",
			OutputLanguage: "english",
			TimeoutMS:      45000,
		},
		Capture: CaptureConfig{
			Mode:           "mock",
			Language:       "en",
			SampleRate:     16000,
			Channels:       1,
			MaxUtteranceMS: 15000,
		},
		Playback: PlaybackConfig{
			Mode:               "media",
			PositionIntervalMS: 250,
			Autoplay:           true,
		},
		Voice: VoiceConfig{
			Enabled:         true,
			DefaultIdentity: "local-user",
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
	overrideString(&cfg.RuntimeName, "GEETA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "GEETA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "GEETA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "GEETA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "GEETA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "GEETA_TELEMETRY_LOG_FILE")
	overrideInt(&cfg.Telemetry.LogMaxSizeMB, "GEETA_TELEMETRY_LOG_MAX_SIZE_MB")
	overrideInt(&cfg.Telemetry.LogMaxBackups, "GEETA_TELEMETRY_LOG_MAX_BACKUPS")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "GEETA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "GEETA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "GEETA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "GEETA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "GEETA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "GEETA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "GEETA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "GEETA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "GEETA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "GEETA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "GEETA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "GEETA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "GEETA_STORE_PATH")
	overrideBool(&cfg.Store.VacuumOnStart, "GEETA_STORE_VACUUM_ON_START")
	overrideString(&cfg.Gateway.Endpoint, "GEETA_GATEWAY_ENDPOINT")
	overrideString(&cfg.Gateway.Author, "GEETA_GATEWAY_AUTHOR")
	overrideString(&cfg.Gateway.OutputLanguage, "GEETA_GATEWAY_OUTPUT_LANGUAGE")
	overrideInt(&cfg.Gateway.TimeoutMS, "GEETA_GATEWAY_TIMEOUT_MS")
	overrideString(&cfg.Capture.Mode, "GEETA_CAPTURE_MODE")
	overrideString(&cfg.Capture.CaptureCommand, "GEETA_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.TranscribeCommand, "GEETA_CAPTURE_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Capture.ModelPath, "GEETA_CAPTURE_MODEL_PATH")
	overrideString(&cfg.Capture.Language, "GEETA_CAPTURE_LANGUAGE")
	overrideString(&cfg.Capture.Device, "GEETA_CAPTURE_DEVICE")
	overrideInt(&cfg.Capture.SampleRate, "GEETA_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "GEETA_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.MaxUtteranceMS, "GEETA_CAPTURE_MAX_UTTERANCE_MS")
	overrideString(&cfg.Playback.Mode, "GEETA_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "GEETA_PLAYBACK_COMMAND")
	overrideString(&cfg.Playback.CacheDir, "GEETA_PLAYBACK_CACHE_DIR")
	overrideInt(&cfg.Playback.PositionIntervalMS, "GEETA_PLAYBACK_POSITION_INTERVAL_MS")
	overrideBool(&cfg.Playback.Autoplay, "GEETA_PLAYBACK_AUTOPLAY")
	overrideBool(&cfg.Voice.Enabled, "GEETA_VOICE_ENABLED")
	overrideString(&cfg.Voice.DefaultIdentity, "GEETA_VOICE_DEFAULT_IDENTITY")
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

// KnownAuthors lists the commentary authors the inference gateway accepts
// as a response style.
var KnownAuthors = []string{
	"Swami Sivananda",
	"Swami Ramsukhdas",
	"A.C. Bhaktivedanta Swami Prabhupada",
	"Swami Tejomayananda",
	"Swami Chinmayananda",
}

func knownAuthor(author string) bool {
	for _, a := range KnownAuthors {
		if a == author {
			return true
		}
	}
	return false
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
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Gateway.Endpoint == "" {
		return errors.New("gateway.endpoint must not be empty")
	}
	if !knownAuthor(cfg.Gateway.Author) {
		return fmt.Errorf("gateway.author %q is not a known commentary author", cfg.Gateway.Author)
	}
	switch cfg.Gateway.OutputLanguage {
	case "english", "hindi", "sanskrit":
		// ok
	default:
		return errors.New("gateway.output_language must be one of english|hindi|sanskrit")
	}
	if cfg.Gateway.TimeoutMS <= 0 {
		return errors.New("gateway.timeout_ms must be positive")
	}
	switch cfg.Capture.Mode {
	case "mock", "exec":
	default:
		return errors.New("capture.mode must be one of mock|exec")
	}
	if cfg.Capture.Mode == "exec" {
		if cfg.Capture.CaptureCommand == "" {
			return errors.New("capture.capture_command must be set when mode=exec")
		}
		if cfg.Capture.TranscribeCommand == "" {
			return errors.New("capture.transcribe_command must be set when mode=exec")
		}
		if cfg.Capture.SampleRate <= 0 {
			return errors.New("capture.sample_rate must be positive")
		}
		if cfg.Capture.Channels <= 0 {
			return errors.New("capture.channels must be positive")
		}
	}
	if cfg.Capture.MaxUtteranceMS <= 0 {
		return errors.New("capture.max_utterance_ms must be positive")
	}
	switch cfg.Playback.Mode {
	case "media", "exec":
	default:
		return errors.New("playback.mode must be one of media|exec")
	}
	if cfg.Playback.Mode == "exec" && cfg.Playback.Command == "" {
		return errors.New("playback.command must be set when mode=exec")
	}
	if cfg.Playback.PositionIntervalMS <= 0 {
		return errors.New("playback.position_interval_ms must be positive")
	}
	if cfg.Voice.Enabled && cfg.Voice.DefaultIdentity == "" {
		return errors.New("voice.default_identity must not be empty when voice is enabled")
	}
	return nil
}

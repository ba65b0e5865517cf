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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
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
	Presence    PresenceConfig  `yaml:"presence"`
	Store       StoreConfig     `yaml:"store"`
	Camera      CameraConfig    `yaml:"camera"`
	Vision      VisionConfig    `yaml:"vision"`
	Sampler     SamplerConfig   `yaml:"sampler"`
	Transcript  TranscriptConfig `yaml:"transcript"`
	Speech      SpeechConfig    `yaml:"speech"`
	UI          UIConfig        `yaml:"ui"`
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

type PresenceConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CameraConfig struct {
	Mode             string `yaml:"mode"` // mock, exec, http
	Command          string `yaml:"command"`
	SnapshotURL      string `yaml:"snapshot_url"`
	Width            int    `yaml:"width"`
	Height           int    `yaml:"height"`
	CaptureTimeoutMS int    `yaml:"capture_timeout_ms"`
}

type VisionConfig struct {
	Mode        string `yaml:"mode"` // mock, ollama, exec
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	Command     string `yaml:"command"`
	Instruction string `yaml:"instruction"`
	APIKey      string `yaml:"-"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

type SamplerConfig struct {
	IntervalMS int  `yaml:"interval_ms"`
	Autostart  bool `yaml:"autostart"`
}

type TranscriptConfig struct {
	ConfidenceThreshold int    `yaml:"confidence_threshold"`
	HistorySize         int    `yaml:"history_size"`
	Voice               string `yaml:"voice"`
}

type SpeechConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	PlayerCommand string `yaml:"player_command"`
	Voice         string `yaml:"voice"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	Muted         bool   `yaml:"muted"`
	SpoolDir      string `yaml:"spool_dir"`
}

type UIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultInstruction is the fixed system prompt sent with every frame.
const DefaultInstruction = "You are an American Sign Language recognition system. " +
	"Look at the hand gesture in the image and identify the ASL sign. " +
	`Respond with JSON only: {"sign": "<word>", "confidence": <0-100>}. ` +
	`If no clear sign is visible respond with {"sign": "...", "confidence": 0}.`

func Default() Config {
	return Config{
		RuntimeName: "signstream-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Presence: PresenceConfig{
			ID:                "signstream-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Store: StoreConfig{
			Path:          "./data/signstream.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Camera: CameraConfig{
			Mode:             "mock",
			Width:            640,
			Height:           480,
			CaptureTimeoutMS: 5000,
		},
		Vision: VisionConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llava:latest",
			Instruction: DefaultInstruction,
			TimeoutMS:   30000,
		},
		Sampler: SamplerConfig{
			IntervalMS: 1500,
			Autostart:  false,
		},
		Transcript: TranscriptConfig{
			ConfidenceThreshold: 60,
			HistorySize:         10,
			Voice:               "en-US",
		},
		Speech: SpeechConfig{
			Enabled:    false,
			Mode:       "mock",
			Voice:      "en-US",
			SampleRate: 22050,
			Channels:   1,
			SpoolDir:   "./data/speech",
		},
		UI: UIConfig{
			Enabled: true,
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
	overrideString(&cfg.RuntimeName, "SIGND_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SIGND_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SIGND_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SIGND_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SIGND_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SIGND_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SIGND_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "SIGND_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SIGND_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SIGND_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SIGND_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SIGND_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SIGND_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SIGND_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SIGND_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SIGND_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Presence.ID, "SIGND_PRESENCE_ID")
	overrideString(&cfg.Presence.Role, "SIGND_PRESENCE_ROLE")
	overrideInt(&cfg.Presence.HeartbeatInterval, "SIGND_PRESENCE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Presence.HeartbeatTimeout, "SIGND_PRESENCE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "SIGND_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "SIGND_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "SIGND_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "SIGND_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "SIGND_STORE_VACUUM_ON_START")
	overrideString(&cfg.Camera.Mode, "SIGND_CAMERA_MODE")
	overrideString(&cfg.Camera.Command, "SIGND_CAMERA_COMMAND")
	overrideString(&cfg.Camera.SnapshotURL, "SIGND_CAMERA_SNAPSHOT_URL")
	overrideInt(&cfg.Camera.Width, "SIGND_CAMERA_WIDTH")
	overrideInt(&cfg.Camera.Height, "SIGND_CAMERA_HEIGHT")
	overrideInt(&cfg.Camera.CaptureTimeoutMS, "SIGND_CAMERA_CAPTURE_TIMEOUT_MS")
	overrideString(&cfg.Vision.Mode, "SIGND_VISION_MODE")
	overrideString(&cfg.Vision.Endpoint, "SIGND_VISION_ENDPOINT")
	overrideString(&cfg.Vision.Model, "SIGND_VISION_MODEL")
	overrideString(&cfg.Vision.Command, "SIGND_VISION_COMMAND")
	overrideString(&cfg.Vision.Instruction, "SIGND_VISION_INSTRUCTION")
	overrideString(&cfg.Vision.APIKey, "SIGND_VISION_API_KEY")
	overrideInt(&cfg.Vision.TimeoutMS, "SIGND_VISION_TIMEOUT_MS")
	overrideInt(&cfg.Sampler.IntervalMS, "SIGND_SAMPLER_INTERVAL_MS")
	overrideBool(&cfg.Sampler.Autostart, "SIGND_SAMPLER_AUTOSTART")
	overrideInt(&cfg.Transcript.ConfidenceThreshold, "SIGND_TRANSCRIPT_CONFIDENCE_THRESHOLD")
	overrideInt(&cfg.Transcript.HistorySize, "SIGND_TRANSCRIPT_HISTORY_SIZE")
	overrideString(&cfg.Transcript.Voice, "SIGND_TRANSCRIPT_VOICE")
	overrideBool(&cfg.Speech.Enabled, "SIGND_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "SIGND_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "SIGND_SPEECH_COMMAND")
	overrideString(&cfg.Speech.PlayerCommand, "SIGND_SPEECH_PLAYER_COMMAND")
	overrideString(&cfg.Speech.Voice, "SIGND_SPEECH_VOICE")
	overrideInt(&cfg.Speech.SampleRate, "SIGND_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "SIGND_SPEECH_CHANNELS")
	overrideBool(&cfg.Speech.Muted, "SIGND_SPEECH_MUTED")
	overrideString(&cfg.Speech.SpoolDir, "SIGND_SPEECH_SPOOL_DIR")
	overrideBool(&cfg.UI.Enabled, "SIGND_UI_ENABLED")
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
	if cfg.Presence.ID == "" {
		return errors.New("presence.id must not be empty")
	}
	if cfg.Presence.HeartbeatInterval <= 0 {
		return errors.New("presence.heartbeat_interval_ms must be positive")
	}
	if cfg.Presence.HeartbeatTimeout <= cfg.Presence.HeartbeatInterval {
		return errors.New("presence.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	switch cfg.Camera.Mode {
	case "mock", "exec", "http":
	default:
		return errors.New("camera.mode must be one of mock|exec|http")
	}
	if cfg.Camera.Mode == "exec" && cfg.Camera.Command == "" {
		return errors.New("camera.command must be set when mode=exec")
	}
	if cfg.Camera.Mode == "http" && cfg.Camera.SnapshotURL == "" {
		return errors.New("camera.snapshot_url must be set when mode=http")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	switch cfg.Vision.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("vision.mode must be one of mock|ollama|exec")
	}
	if cfg.Vision.Mode == "ollama" && cfg.Vision.Endpoint == "" {
		return errors.New("vision.endpoint must be set when mode=ollama")
	}
	if cfg.Vision.Mode == "exec" && cfg.Vision.Command == "" {
		return errors.New("vision.command must be set when mode=exec")
	}
	if cfg.Vision.TimeoutMS <= 0 {
		return errors.New("vision.timeout_ms must be positive")
	}
	if cfg.Sampler.IntervalMS <= 0 {
		return errors.New("sampler.interval_ms must be positive")
	}
	if cfg.Transcript.ConfidenceThreshold < 0 || cfg.Transcript.ConfidenceThreshold > 100 {
		return errors.New("transcript.confidence_threshold must be between 0 and 100")
	}
	if cfg.Transcript.HistorySize <= 0 {
		return errors.New("transcript.history_size must be >= 1")
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
		if cfg.Speech.SampleRate <= 0 {
			return errors.New("speech.sample_rate must be positive")
		}
		if cfg.Speech.Channels <= 0 {
			return errors.New("speech.channels must be positive")
		}
		if cfg.Speech.SpoolDir == "" {
			return errors.New("speech.spool_dir must not be empty")
		}
	}
	return nil
}

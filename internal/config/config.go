package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Persona     PersonaConfig             `json:"persona"`
	RateLimit   RateLimitConfig           `json:"rate_limit"`
	Stream      StreamConfig              `json:"stream"`
	Calendar    CalendarConfig            `json:"calendar"`
}

type BasicConfig struct {
	ServerAddress       string `json:"server_address"`
	TurnTimeoutSeconds  int    `json:"turn_timeout_seconds"`
	ConversationTTLDays int    `json:"conversation_ttl_days"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// PersonaConfig describes the person the agent answers as.
type PersonaConfig struct {
	Name         string `json:"name"`
	Timezone     string `json:"timezone"`
	Instructions string `json:"instructions"`
	Provider     string `json:"provider"`
	Streaming    *bool  `json:"streaming"`
}

type RateLimitConfig struct {
	PerMinute int `json:"per_minute"`
	PerDay    int `json:"per_day"`
}

// StreamConfig tunes the typing cadence of streamed replies. Delays are a UX
// policy only; zero values are valid and used in non-interactive contexts.
type StreamConfig struct {
	StreamDelayMillis int `json:"stream_delay_millis"`
	ChunkDelayMillis  int `json:"chunk_delay_millis"`
	WordsPerChunk     int `json:"words_per_chunk"`
}

type CalendarConfig struct {
	APIBase        string `json:"api_base"`
	APIKey         string `json:"api_key"`
	EventTypeID    int    `json:"event_type_id"`
	WebhookSecret  string `json:"webhook_secret"`
	MinLeadHours   int    `json:"min_lead_hours"`
	MaxRetries     int    `json:"max_retries"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

const (
	defaultPerMinute      = 10
	defaultPerDay         = 100
	defaultTTLDays        = 7
	defaultTurnTimeout    = 120
	defaultStreamDelay    = 30
	defaultChunkDelay     = 80
	defaultWordsPerChunk  = 4
	defaultMinLeadHours   = 24
	defaultCalMaxRetries  = 3
	defaultCalTimeoutSecs = 60
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = defaultPerMinute
	}
	if cfg.RateLimit.PerDay <= 0 {
		cfg.RateLimit.PerDay = defaultPerDay
	}
	if cfg.BasicConfig.ConversationTTLDays <= 0 {
		cfg.BasicConfig.ConversationTTLDays = defaultTTLDays
	}
	if cfg.BasicConfig.TurnTimeoutSeconds <= 0 {
		cfg.BasicConfig.TurnTimeoutSeconds = defaultTurnTimeout
	}
	if cfg.Stream.StreamDelayMillis < 0 {
		cfg.Stream.StreamDelayMillis = 0
	} else if cfg.Stream.StreamDelayMillis == 0 {
		cfg.Stream.StreamDelayMillis = defaultStreamDelay
	}
	if cfg.Stream.ChunkDelayMillis < 0 {
		cfg.Stream.ChunkDelayMillis = 0
	} else if cfg.Stream.ChunkDelayMillis == 0 {
		cfg.Stream.ChunkDelayMillis = defaultChunkDelay
	}
	if cfg.Stream.WordsPerChunk <= 0 {
		cfg.Stream.WordsPerChunk = defaultWordsPerChunk
	}
	if cfg.Calendar.MinLeadHours <= 0 {
		cfg.Calendar.MinLeadHours = defaultMinLeadHours
	}
	if cfg.Calendar.MaxRetries <= 0 {
		cfg.Calendar.MaxRetries = defaultCalMaxRetries
	}
	if cfg.Calendar.TimeoutSeconds <= 0 {
		cfg.Calendar.TimeoutSeconds = defaultCalTimeoutSecs
	}
	if cfg.Persona.Timezone == "" {
		cfg.Persona.Timezone = "Australia/Sydney"
	}
}

// TurnTimeout returns the maximum duration of one conversational turn.
func (cfg *Config) TurnTimeout() time.Duration {
	return time.Duration(cfg.BasicConfig.TurnTimeoutSeconds) * time.Second
}

// ConversationTTL returns the retention window for stored conversations.
func (cfg *Config) ConversationTTL() time.Duration {
	return time.Duration(cfg.BasicConfig.ConversationTTLDays) * 24 * time.Hour
}

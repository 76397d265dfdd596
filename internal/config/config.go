// Package config loads application configuration from environment variables
// and an optional YAML file.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig
	DB       DBConfig
	Server   ServerConfig
	S3       S3Config
	Redis    RedisConfig
	AI       AIConfig
	OpenAI   OpenAIConfig
	Ollama   OllamaConfig
	Reddit   RedditConfig
	Twitter  TwitterConfig
	Media    MediaConfig
	Quotas   map[string]Quota
	Pipeline PipelineConfig
	Scraper  ScraperConfig
	Admin    AdminConfig
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// DBConfig holds database connection parameters. Driver is "postgres" or
// "sqlite"; Path is only used by sqlite.
type DBConfig struct {
	Driver  string
	Host    string
	Port    int
	User    string
	Pass    string
	DBName  string
	SSLMode string
	Path    string
}

// DSN returns a PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Pass +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port    string
	Host    string
	BaseURL string
}

// Addr returns the full listen address (host:port).
func (c ServerConfig) Addr() string {
	return c.Host + c.Port
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// RedisConfig selects the redis quota backend when URL is set.
type RedisConfig struct {
	URL string
}

// AIConfig selects the story generator.
type AIConfig struct {
	Provider string // openai | ollama
}

// OpenAIConfig holds OpenAI chat completion parameters.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OllamaConfig holds the Ollama LLM server parameters.
type OllamaConfig struct {
	Host  string
	Model string
}

// RedditConfig holds Reddit API credentials and the subreddits to watch.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Subreddits   []string
	Sort         string
}

// TwitterConfig holds Twitter/X access settings.
type TwitterConfig struct {
	BearerToken string
	NitterURL   string
	Accounts    []string
}

// MediaConfig holds stock media API keys and the category fallback images.
type MediaConfig struct {
	PexelsKey     string
	KlipyKey      string
	GiphyKey      string
	DefaultImages map[string]string
}

// Quota is a per-service call budget. Zero means unlimited.
type Quota struct {
	Daily     int
	Monthly   int
	PerSecond float64
}

// PipelineConfig controls a batch ingestion run.
type PipelineConfig struct {
	Schedule        string
	MaxStories      int
	DailyLimit      int
	MinDramaScore   float64
	PostsPerSource  int
	CommentsPerPost int
	Workers         int
	SimulateOnEmpty bool
	PersonaFile     string
	RunTimeout      time.Duration
}

// ScraperConfig controls the self-healing scraper.
type ScraperConfig struct {
	UserAgent     string
	MaxAttempts   int
	MinBodyLength int
	Timeout       time.Duration
}

// AdminConfig holds the bcrypt hash of the admin bearer token.
type AdminConfig struct {
	TokenHash string
}

// defaultQuotas mirror the free tiers of the upstream APIs.
var defaultQuotas = map[string]Quota{
	"reddit":  {Daily: 5000, Monthly: 0, PerSecond: 1},
	"twitter": {Daily: 50, Monthly: 1500, PerSecond: 0.2},
	"openai":  {Daily: 200, Monthly: 5000, PerSecond: 1},
	"ollama":  {PerSecond: 2},
	"pexels":  {Daily: 200, Monthly: 20000, PerSecond: 1},
	"klipy":   {Daily: 100, Monthly: 3000, PerSecond: 1},
	"giphy":   {Daily: 100, Monthly: 3000, PerSecond: 1},
}

// Load reads configuration with sensible defaults. Environment variables win
// over CONFIG_FILE values.
func Load() Config {
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		// A missing or broken file leaves env and defaults in place.
		_ = v.ReadInConfig()
	}
	return v
}

// Viper returns a viper instance carrying the defaults, for callers that
// bind command-line flags before building the Config.
func Viper() *viper.Viper {
	return newViper()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "threadjuice")
	v.SetDefault("DB_PASS", "threadjuice")
	v.SetDefault("DB_NAME", "threadjuice")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "threadjuice.db")

	v.SetDefault("SERVER_PORT", ":8080")
	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("SERVER_BASE_URL", "http://localhost:8080")

	v.SetDefault("S3_BUCKET", "threadjuice-archive")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("AI_PROVIDER", "openai")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TEMPERATURE", 0.8)
	v.SetDefault("OPENAI_MAX_TOKENS", 3000)
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3.1:8b")

	v.SetDefault("REDDIT_USER_AGENT", "threadjuice/1.0 (content pipeline)")
	v.SetDefault("REDDIT_SUBREDDITS", "AmItheAsshole,relationship_advice,antiwork,entitledparents,pettyrevenge,maliciouscompliance")
	v.SetDefault("REDDIT_SORT", "hot")
	v.SetDefault("TWITTER_NITTER_URL", "https://nitter.net")
	v.SetDefault("TWITTER_ACCOUNTS", "")

	v.SetDefault("PIPELINE_SCHEDULE", "0 */4 * * *")
	v.SetDefault("PIPELINE_MAX_STORIES", 5)
	v.SetDefault("PIPELINE_DAILY_LIMIT", 30)
	v.SetDefault("PIPELINE_MIN_DRAMA_SCORE", 3.5)
	v.SetDefault("PIPELINE_POSTS_PER_SOURCE", 25)
	v.SetDefault("PIPELINE_COMMENTS_PER_POST", 8)
	v.SetDefault("PIPELINE_WORKERS", 2)
	v.SetDefault("PIPELINE_SIMULATE_ON_EMPTY", true)
	v.SetDefault("PIPELINE_RUN_TIMEOUT", "1h")

	v.SetDefault("SCRAPER_USER_AGENT", "Mozilla/5.0 (compatible; ThreadJuiceBot/1.0)")
	v.SetDefault("SCRAPER_MAX_ATTEMPTS", 3)
	v.SetDefault("SCRAPER_MIN_BODY_LENGTH", 40)
	v.SetDefault("SCRAPER_TIMEOUT", "20s")

	for service, q := range defaultQuotas {
		key := strings.ToUpper(service)
		v.SetDefault("QUOTA_"+key+"_DAILY", q.Daily)
		v.SetDefault("QUOTA_"+key+"_MONTHLY", q.Monthly)
		v.SetDefault("QUOTA_"+key+"_PER_SECOND", q.PerSecond)
	}
}

// FromViper builds a Config from an already prepared viper instance.
func FromViper(v *viper.Viper) Config {
	quotas := make(map[string]Quota, len(defaultQuotas))
	for service := range defaultQuotas {
		key := strings.ToUpper(service)
		quotas[service] = Quota{
			Daily:     v.GetInt("QUOTA_" + key + "_DAILY"),
			Monthly:   v.GetInt("QUOTA_" + key + "_MONTHLY"),
			PerSecond: v.GetFloat64("QUOTA_" + key + "_PER_SECOND"),
		}
	}

	return Config{
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		DB: DBConfig{
			Driver:  v.GetString("DB_DRIVER"),
			Host:    v.GetString("DB_HOST"),
			Port:    v.GetInt("DB_PORT"),
			User:    v.GetString("DB_USER"),
			Pass:    v.GetString("DB_PASS"),
			DBName:  v.GetString("DB_NAME"),
			SSLMode: v.GetString("DB_SSLMODE"),
			Path:    v.GetString("DB_PATH"),
		},
		Server: ServerConfig{
			Port:    v.GetString("SERVER_PORT"),
			Host:    v.GetString("SERVER_HOST"),
			BaseURL: strings.TrimRight(v.GetString("SERVER_BASE_URL"), "/"),
		},
		S3: S3Config{
			Endpoint:  v.GetString("S3_ENDPOINT"),
			Bucket:    v.GetString("S3_BUCKET"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			Region:    v.GetString("S3_REGION"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		AI: AIConfig{
			Provider: strings.ToLower(v.GetString("AI_PROVIDER")),
		},
		OpenAI: OpenAIConfig{
			APIKey:      v.GetString("OPENAI_API_KEY"),
			BaseURL:     v.GetString("OPENAI_BASE_URL"),
			Model:       v.GetString("OPENAI_MODEL"),
			Temperature: float32(v.GetFloat64("OPENAI_TEMPERATURE")),
			MaxTokens:   v.GetInt("OPENAI_MAX_TOKENS"),
		},
		Ollama: OllamaConfig{
			Host:  v.GetString("OLLAMA_HOST"),
			Model: v.GetString("OLLAMA_MODEL"),
		},
		Reddit: RedditConfig{
			ClientID:     v.GetString("REDDIT_CLIENT_ID"),
			ClientSecret: v.GetString("REDDIT_CLIENT_SECRET"),
			UserAgent:    v.GetString("REDDIT_USER_AGENT"),
			Subreddits:   splitList(v.GetString("REDDIT_SUBREDDITS")),
			Sort:         v.GetString("REDDIT_SORT"),
		},
		Twitter: TwitterConfig{
			BearerToken: v.GetString("TWITTER_BEARER_TOKEN"),
			NitterURL:   v.GetString("TWITTER_NITTER_URL"),
			Accounts:    splitList(v.GetString("TWITTER_ACCOUNTS")),
		},
		Media: MediaConfig{
			PexelsKey:     v.GetString("PEXELS_API_KEY"),
			KlipyKey:      v.GetString("KLIPY_API_KEY"),
			GiphyKey:      v.GetString("GIPHY_API_KEY"),
			DefaultImages: v.GetStringMapString("MEDIA_DEFAULT_IMAGES"),
		},
		Quotas: quotas,
		Pipeline: PipelineConfig{
			Schedule:        v.GetString("PIPELINE_SCHEDULE"),
			MaxStories:      v.GetInt("PIPELINE_MAX_STORIES"),
			DailyLimit:      v.GetInt("PIPELINE_DAILY_LIMIT"),
			MinDramaScore:   v.GetFloat64("PIPELINE_MIN_DRAMA_SCORE"),
			PostsPerSource:  v.GetInt("PIPELINE_POSTS_PER_SOURCE"),
			CommentsPerPost: v.GetInt("PIPELINE_COMMENTS_PER_POST"),
			Workers:         v.GetInt("PIPELINE_WORKERS"),
			SimulateOnEmpty: v.GetBool("PIPELINE_SIMULATE_ON_EMPTY"),
			PersonaFile:     v.GetString("PIPELINE_PERSONA_FILE"),
			RunTimeout:      v.GetDuration("PIPELINE_RUN_TIMEOUT"),
		},
		Scraper: ScraperConfig{
			UserAgent:     v.GetString("SCRAPER_USER_AGENT"),
			MaxAttempts:   v.GetInt("SCRAPER_MAX_ATTEMPTS"),
			MinBodyLength: v.GetInt("SCRAPER_MIN_BODY_LENGTH"),
			Timeout:       v.GetDuration("SCRAPER_TIMEOUT"),
		},
		Admin: AdminConfig{
			TokenHash: v.GetString("ADMIN_TOKEN_HASH"),
		},
	}
}

// splitList splits a comma-separated setting into trimmed, non-empty values.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

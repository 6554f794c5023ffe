// Package config provides configuration management for videovoice using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Media       MediaConfig       `mapstructure:"media"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Translation TranslationConfig `mapstructure:"translation"`
	Quality     QualityConfig     `mapstructure:"quality"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// APIKey enables header-based authentication when non-empty.
	APIKey string `mapstructure:"api_key"`
}

// StorageConfig holds the persistent write roots. Uploads, outputs, the
// translation cache and the job registry all live under StaticDir.
type StorageConfig struct {
	StaticDir   string   `mapstructure:"static_dir"`
	MaxFileSize ByteSize `mapstructure:"max_file_size"`
}

// UploadDir returns the root for uploaded input files.
func (s StorageConfig) UploadDir() string {
	return filepath.Join(s.StaticDir, "uploads")
}

// OutputDir returns the root for generated artifacts.
func (s StorageConfig) OutputDir() string {
	return filepath.Join(s.StaticDir, "outputs")
}

// TranslationCacheDir returns the directory for cached translations.
func (s StorageConfig) TranslationCacheDir() string {
	return filepath.Join(s.StaticDir, "cache", "translations")
}

// RegistryPath returns the path of the persisted job registry.
func (s StorageConfig) RegistryPath() string {
	return filepath.Join(s.StaticDir, "jobs.json")
}

// URLPath maps a file under StaticDir to the public URL path it is served
// at. Paths outside StaticDir are returned unchanged.
func (s StorageConfig) URLPath(path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(s.StaticDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return "/static/" + filepath.ToSlash(rel)
}

// FilePath resolves a /static/ URL path back to the file on disk. Anything
// else is assumed to already be a filesystem path.
func (s StorageConfig) FilePath(urlPath string) string {
	if rest, ok := strings.CutPrefix(urlPath, "/static/"); ok {
		return filepath.Join(s.StaticDir, filepath.FromSlash(rest))
	}
	return urlPath
}

// EnsureDirs creates the storage directory tree.
func (s StorageConfig) EnsureDirs() error {
	for _, dir := range []string{s.UploadDir(), s.OutputDir(), s.TranslationCacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// JobsConfig holds job registry and scheduling settings.
type JobsConfig struct {
	// MaxJobs is the registry high-water mark before eviction.
	MaxJobs int `mapstructure:"max_jobs"`
	// MaxConcurrent caps simultaneously running pipelines.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxLogsPerJob bounds the per-job log ring buffer.
	MaxLogsPerJob int `mapstructure:"max_logs_per_job"`
	// Expiration is how long finished jobs and their files are retained.
	Expiration Duration `mapstructure:"expiration"`
	// SweepSchedule is a cron expression for the retention sweeper.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// MediaConfig holds transcoder settings.
type MediaConfig struct {
	FFmpegPath   string   `mapstructure:"ffmpeg_path"`
	FFprobePath  string   `mapstructure:"ffprobe_path"`
	Timeout      Duration `mapstructure:"timeout"`
	ProbeTimeout Duration `mapstructure:"probe_timeout"`
	EmbedTimeout Duration `mapstructure:"embed_timeout"`
}

// ProvidersConfig groups every external provider credential and endpoint.
type ProvidersConfig struct {
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Groq       GroqConfig       `mapstructure:"groq"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	Whisper    WhisperConfig    `mapstructure:"whisper"`
	XTTS       XTTSConfig       `mapstructure:"xtts"`
	Silero     SileroConfig     `mapstructure:"silero"`
	Edge       EdgeConfig       `mapstructure:"edge"`
}

// GeminiConfig configures the Gemini chat provider.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// GroqConfig configures the Groq chat and Whisper endpoints.
type GroqConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	WhisperModel string `mapstructure:"whisper_model"`
	BaseURL      string `mapstructure:"base_url"`
}

// OpenAIConfig configures OpenAI transcription and speech.
type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	WhisperModel string `mapstructure:"whisper_model"`
	TTSModel     string `mapstructure:"tts_model"`
	TTSVoice     string `mapstructure:"tts_voice"`
}

// ElevenLabsConfig configures the ElevenLabs TTS provider.
type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	VoiceID string `mapstructure:"voice_id"`
}

// OllamaConfig configures the local model server used for translation.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// WhisperConfig configures the local transcriber binary.
type WhisperConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ModelPath  string `mapstructure:"model_path"`
}

// XTTSConfig configures the local clone-capable synthesis server.
type XTTSConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SileroConfig configures the lightweight local synthesis server.
type SileroConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// EdgeConfig configures the network neural TTS provider.
type EdgeConfig struct {
	// Voices maps language codes to voice names, e.g. "ko" -> "ko-KR-SunHiNeural".
	Voices map[string]string `mapstructure:"voices"`
}

// TranslationConfig holds translation behaviour knobs.
type TranslationConfig struct {
	DefaultEngine string   `mapstructure:"default_engine"`
	Timeout       Duration `mapstructure:"timeout"`
	// MinBatchSuccess is the minimum percentage of a segment batch that must
	// parse before falling back to per-segment translation.
	MinBatchSuccess int `mapstructure:"min_batch_success"`
}

// QualityConfig holds quality loop settings.
type QualityConfig struct {
	// Floor is the score at which the refinement loop stops.
	Floor int `mapstructure:"floor"`
	// CacheFloor is the minimum score admitted to the translation cache.
	CacheFloor    int      `mapstructure:"cache_floor"`
	MaxIterations int      `mapstructure:"max_iterations"`
	Timeout       Duration `mapstructure:"timeout"`
}

// CacheConfig holds translation cache settings.
type CacheConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	ExpirationDays int  `mapstructure:"expiration_days"`
}

// RateLimitConfig holds per-client-IP rate limiting settings.
type RateLimitConfig struct {
	Requests int      `mapstructure:"requests"`
	Window   Duration `mapstructure:"window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SetDefaults registers every default value on the provided viper instance.
// Must be called before ReadInConfig so the config file can override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.api_key", "")

	v.SetDefault("storage.static_dir", "static")
	v.SetDefault("storage.max_file_size", "2GB")

	v.SetDefault("jobs.max_jobs", 100)
	v.SetDefault("jobs.max_concurrent", 3)
	v.SetDefault("jobs.max_logs_per_job", 1000)
	v.SetDefault("jobs.expiration", "24h")
	v.SetDefault("jobs.sweep_schedule", "*/30 * * * *")

	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.timeout", "600s")
	v.SetDefault("media.probe_timeout", "30s")
	v.SetDefault("media.embed_timeout", "60s")

	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("providers.groq.whisper_model", "whisper-large-v3")
	v.SetDefault("providers.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("providers.openai.whisper_model", "whisper-1")
	v.SetDefault("providers.openai.tts_model", "tts-1")
	v.SetDefault("providers.openai.tts_voice", "alloy")
	v.SetDefault("providers.elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.ollama.model", "qwen2.5:14b")
	v.SetDefault("providers.whisper.binary_path", "whisper-cli")
	v.SetDefault("providers.whisper.model_path", "")
	v.SetDefault("providers.xtts.base_url", "http://localhost:8020")
	v.SetDefault("providers.silero.base_url", "http://localhost:8921")
	v.SetDefault("providers.edge.voices", map[string]string{
		"en": "en-US-AriaNeural",
		"ko": "ko-KR-SunHiNeural",
		"ja": "ja-JP-NanamiNeural",
		"zh": "zh-CN-XiaoxiaoNeural",
		"ru": "ru-RU-SvetlanaNeural",
		"es": "es-ES-ElviraNeural",
		"fr": "fr-FR-DeniseNeural",
		"de": "de-DE-KatjaNeural",
	})

	v.SetDefault("translation.default_engine", "auto")
	v.SetDefault("translation.timeout", "900s")
	v.SetDefault("translation.min_batch_success", 70)

	v.SetDefault("quality.floor", 85)
	v.SetDefault("quality.cache_floor", 60)
	v.SetDefault("quality.max_iterations", 3)
	v.SetDefault("quality.timeout", "120s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.expiration_days", 30)

	v.SetDefault("rate_limit.requests", 1000)
	v.SetDefault("rate_limit.window", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")
}

// bindEnvAliases binds plain environment variable names used by existing
// deployments alongside the VIDEOVOICE_ prefixed forms.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"providers.gemini.api_key":     "GEMINI_API_KEY",
		"providers.groq.api_key":       "GROQ_API_KEY",
		"providers.openai.api_key":     "OPENAI_API_KEY",
		"providers.elevenlabs.api_key": "ELEVENLABS_API_KEY",
		"storage.max_file_size":        "MAX_FILE_SIZE",
		"jobs.max_jobs":                "MAX_JOBS",
		"jobs.max_concurrent":          "MAX_CONCURRENT_JOBS",
		"jobs.max_logs_per_job":        "MAX_LOGS_PER_JOB",
		"rate_limit.requests":          "RATE_LIMIT_REQUESTS",
		"server.api_key":               "API_KEY",
		"server.cors_origins":          "CORS_ORIGINS",
		"cache.expiration_days":        "CACHE_EXPIRATION_DAYS",
	}
	for key, env := range aliases {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key, key, env)
	}
}

// applyLegacyUnitEnvs maps the original deployment's bare-number environment
// variables onto duration keys, appending the unit the old name implies.
// A value that already carries a unit is passed through untouched.
func applyLegacyUnitEnvs(v *viper.Viper) {
	legacy := []struct {
		env  string
		key  string
		unit string
	}{
		{"JOB_EXPIRATION_HOURS", "jobs.expiration", "h"},
		{"RATE_LIMIT_WINDOW", "rate_limit.window", "s"},
		{"FFMPEG_TIMEOUT", "media.timeout", "s"},
		{"TRANSLATION_TIMEOUT", "translation.timeout", "s"},
	}
	for _, l := range legacy {
		val := strings.TrimSpace(os.Getenv(l.env))
		if val == "" {
			continue
		}
		if _, err := strconv.Atoi(val); err == nil {
			val += l.unit
		}
		v.Set(l.key, val)
	}
}

// Load reads configuration from the optional config file and the environment,
// applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with CLI flag overrides bound on top. The map keys
// are config keys ("server.port") and the values the flags that override
// them. Only flags the user actually set are bound, so flag defaults never
// shadow config file or environment values.
func LoadWithFlags(configPath string, flagBinds map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	for key, flag := range flagBinds {
		if flag == nil || !flag.Changed {
			continue
		}
		// BindPFlag only errors on an empty key.
		_ = v.BindPFlag(key, flag)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("videovoice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/videovoice")
	}

	v.SetEnvPrefix("VIDEOVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)
	applyLegacyUnitEnvs(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// The text hook drives the Duration and ByteSize types; the slice hook
	// splits comma-separated env values such as CORS_ORIGINS.
	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("storage.max_file_size must be positive")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.MaxJobs < c.Jobs.MaxConcurrent {
		return fmt.Errorf("jobs.max_jobs (%d) must be >= jobs.max_concurrent (%d)",
			c.Jobs.MaxJobs, c.Jobs.MaxConcurrent)
	}
	if c.Jobs.MaxLogsPerJob < 10 {
		return fmt.Errorf("jobs.max_logs_per_job must be at least 10, got %d", c.Jobs.MaxLogsPerJob)
	}
	if time.Duration(c.Jobs.Expiration) <= 0 {
		return fmt.Errorf("jobs.expiration must be positive")
	}
	if c.Quality.MaxIterations < 1 {
		return fmt.Errorf("quality.max_iterations must be at least 1, got %d", c.Quality.MaxIterations)
	}
	if c.Quality.Floor < 0 || c.Quality.Floor > 100 {
		return fmt.Errorf("quality.floor must be between 0 and 100, got %d", c.Quality.Floor)
	}
	if c.Quality.CacheFloor < 0 || c.Quality.CacheFloor > 100 {
		return fmt.Errorf("quality.cache_floor must be between 0 and 100, got %d", c.Quality.CacheFloor)
	}
	if c.Translation.MinBatchSuccess < 0 || c.Translation.MinBatchSuccess > 100 {
		return fmt.Errorf("translation.min_batch_success must be between 0 and 100, got %d",
			c.Translation.MinBatchSuccess)
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("rate_limit.requests must be at least 1, got %d", c.RateLimit.Requests)
	}
	if c.Cache.ExpirationDays < 1 {
		return fmt.Errorf("cache.expiration_days must be at least 1, got %d", c.Cache.ExpirationDays)
	}
	return nil
}

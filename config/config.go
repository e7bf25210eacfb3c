package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config настройки сервиса: значения по умолчанию, затем YAML-файл, затем переменные окружения.
type Config struct {
	TelegramToken string     `yaml:"telegram_token"`
	HTTPAddr      string     `yaml:"http_addr"`
	DBPath        string     `yaml:"db_path"`
	InboxDir      string     `yaml:"inbox_dir"`
	Log           LogConfig  `yaml:"log"`
	Detectors     Detectors  `yaml:"detectors"`
	Storage       Storage    `yaml:"storage"`
	Supabase      Supabase   `yaml:"supabase"`
	Geocoding     Geocoding  `yaml:"geocoding"`
	Auth          Auth       `yaml:"auth"`
	Annotation    Annotation `yaml:"annotation"`
	Limits        Limits     `yaml:"limits"`
	Tracing       Tracing    `yaml:"tracing"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Detector настройки одной модели детектора
type Detector struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Confidence int    `yaml:"confidence"`
	Overlap    int    `yaml:"overlap"`
}

type Detectors struct {
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	Pothole Detector      `yaml:"pothole"`
	Crack   Detector      `yaml:"crack"`
}

// Storage настройки хранилища снимков. Backend: file или supabase.
type Storage struct {
	Backend             string        `yaml:"backend"`
	Root                string        `yaml:"root"`
	PublicBaseURL       string        `yaml:"public_base_url"`
	OriginalsBucket     string        `yaml:"originals_bucket"`
	AnnotatedBucket     string        `yaml:"annotated_bucket"`
	WorkflowBucket      string        `yaml:"workflow_bucket"`
	Timeout             time.Duration `yaml:"timeout"`
	CompensateOnFailure bool          `yaml:"compensate_on_failure"`
}

type Supabase struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anon_key"`
	ServiceKey string `yaml:"service_key"`
}

type Geocoding struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StaticIdentity пользователь для режима auth.backend=static
type StaticIdentity struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
}

// Auth проверка токенов. Backend: supabase или static.
type Auth struct {
	Backend  string                    `yaml:"backend"`
	Attempts int                       `yaml:"attempts"`
	Backoff  time.Duration             `yaml:"backoff"`
	Tokens   map[string]StaticIdentity `yaml:"tokens"`
}

type Annotation struct {
	Thickness int `yaml:"thickness"`
	// MaxPixels снимки больше этого числа точек не декодируются
	MaxPixels int `yaml:"max_pixels"`
}

// Tracing LogSpans пишет завершённые спаны конвейера в журнал
type Tracing struct {
	LogSpans bool `yaml:"log_spans"`
}

type Limits struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

const (
	defaultConfigPath = "config/config.yaml"
	defaultMaxUpload  = 10 << 20
	defaultMaxPixels  = 40_000_000
)

// Default возвращает конфигурацию со значениями по умолчанию
func Default() Config {
	return Config{
		HTTPAddr: ":5000",
		DBPath:   "roadsense.db",
		Log:      LogConfig{Level: "info"},
		Detectors: Detectors{
			Timeout: 30 * time.Second,
			Pothole: Detector{Name: "pothole", Confidence: 30, Overlap: 25},
			Crack:   Detector{Name: "crack", Confidence: 30, Overlap: 25},
		},
		Storage: Storage{
			Backend:         "file",
			Root:            "data/objects",
			PublicBaseURL:   "http://localhost:5000/storage",
			OriginalsBucket: "road-originals",
			AnnotatedBucket: "road-annotated",
			WorkflowBucket:  "inspections",
			Timeout:         30 * time.Second,
		},
		Geocoding: Geocoding{
			BaseURL: "https://maps.googleapis.com/maps/api/geocode/json",
			Timeout: 10 * time.Second,
		},
		Auth: Auth{
			Attempts: 2,
			Backoff:  time.Second,
		},
		Annotation: Annotation{Thickness: 3, MaxPixels: defaultMaxPixels},
		Limits:     Limits{MaxUploadBytes: defaultMaxUpload},
	}
}

// Load читает .env, YAML-файл из CONFIG_PATH и переменные окружения.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := Default()

	path := getenv("CONFIG_PATH", defaultConfigPath)
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Root == "" {
			return errors.New("storage.root is required for file backend")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return errors.New("supabase url and service key are required for supabase storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Auth.Backend {
	case "static":
	case "supabase":
		if c.Supabase.URL == "" {
			return errors.New("supabase url is required for supabase auth")
		}
	default:
		return fmt.Errorf("unknown auth backend %q", c.Auth.Backend)
	}

	if c.Storage.OriginalsBucket == c.Storage.AnnotatedBucket {
		return errors.New("originals and annotated buckets must differ")
	}
	c.Annotation.Thickness = clampInt(c.Annotation.Thickness, 1, 20)
	if c.Annotation.MaxPixels <= 0 {
		c.Annotation.MaxPixels = defaultMaxPixels
	}
	c.Auth.Attempts = clampInt(c.Auth.Attempts, 1, 5)
	return nil
}

// DetectorsConfigured сообщает, заданы ли адреса обеих моделей
func (c *Config) DetectorsConfigured() bool {
	return c.Detectors.Pothole.URL != "" && c.Detectors.Crack.URL != ""
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.TelegramToken = getenv("TELEGRAM_TOKEN", cfg.TelegramToken)
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.DBPath = getenv("DB_PATH", cfg.DBPath)
	cfg.InboxDir = getenv("INBOX_DIR", cfg.InboxDir)
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getenv("LOG_FILE", cfg.Log.File)

	cfg.Detectors.APIKey = getenv("ROBOFLOW_API_KEY", cfg.Detectors.APIKey)
	cfg.Detectors.Pothole.URL = getenv("ROBOFLOW_POTHOLE_URL", cfg.Detectors.Pothole.URL)
	cfg.Detectors.Crack.URL = getenv("ROBOFLOW_CRACK_URL", cfg.Detectors.Crack.URL)
	cfg.Detectors.Timeout = getenvDuration("DETECTOR_TIMEOUT", cfg.Detectors.Timeout)

	cfg.Storage.Backend = getenv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Root = getenv("STORAGE_ROOT", cfg.Storage.Root)
	cfg.Storage.PublicBaseURL = strings.TrimRight(getenv("PUBLIC_BASE_URL", cfg.Storage.PublicBaseURL), "/")
	cfg.Storage.CompensateOnFailure = getenvBool("STORAGE_COMPENSATE", cfg.Storage.CompensateOnFailure)

	cfg.Supabase.URL = strings.TrimRight(getenv("SUPABASE_URL", cfg.Supabase.URL), "/")
	cfg.Supabase.AnonKey = getenv("SUPABASE_ANON_KEY", cfg.Supabase.AnonKey)
	cfg.Supabase.ServiceKey = getenv("SUPABASE_SERVICE_KEY", cfg.Supabase.ServiceKey)

	cfg.Geocoding.APIKey = getenv("GOOGLE_MAPS_API_KEY", cfg.Geocoding.APIKey)
	cfg.Auth.Backend = getenv("AUTH_BACKEND", cfg.Auth.Backend)
	if cfg.Auth.Backend == "" {
		cfg.Auth.Backend = "static"
		if cfg.Supabase.URL != "" {
			cfg.Auth.Backend = "supabase"
		}
	}
	cfg.Annotation.Thickness = getenvInt("ANNOTATION_THICKNESS", cfg.Annotation.Thickness)
	cfg.Annotation.MaxPixels = getenvInt("ANNOTATION_MAX_PIXELS", cfg.Annotation.MaxPixels)
	cfg.Tracing.LogSpans = getenvBool("TRACE_LOG_SPANS", cfg.Tracing.LogSpans)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

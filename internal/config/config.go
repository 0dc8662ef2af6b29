package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config — настройки сервиса, собранные из .env и переменных окружения.
type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string
	// AppURL используется в письмах для ссылки «Посмотреть статус очереди».
	AppURL      string
	CORSOrigins []string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	JWT struct {
		AccessSecret  string
		RefreshSecret string
		AccessTTL     time.Duration
		RefreshTTL    time.Duration
	}

	Mail struct {
		ResendAPIKey string
		From         string
	}

	AI struct {
		BaseURL  string
		APIKey   string
		Model    string
		Timeout  time.Duration
		CacheTTL time.Duration
	}

	Kafka struct {
		Brokers []string
		Topic   string
	}

	Queue QueuePolicy
}

// QueuePolicy — параметры поведения очередей.
type QueuePolicy struct {
	PerPersonMinutes int
	MinWaitMinutes   int
	// AnonDedupByContact включает отказ анонимному вступлению, если в очереди уже ждёт
	// запись с тем же email в форме.
	AnonDedupByContact bool
	// PositionNotifyThreshold — участникам, поднявшимся на эту позицию или выше, уходит письмо.
	PositionNotifyThreshold int
	// EntryMaxAge — через сколько ожидающая запись считается брошенной (0 — никогда).
	EntryMaxAge time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:     getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:    firstEnv("APP_PORT", "HTTP_PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AppURL:      getEnv("APP_URL", "http://localhost:3000"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = firstEnv("DB_NAME", "DB_DATABASE", "qline")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")

	cfg.JWT.AccessSecret = getEnv("JWT_ACCESS_SECRET", "")
	cfg.JWT.RefreshSecret = getEnv("JWT_REFRESH_SECRET", "")

	cfg.Mail.ResendAPIKey = getEnv("RESEND_API_KEY", "")
	cfg.Mail.From = getEnv("FROM_EMAIL", "Qline <noreply@qline.app>")

	cfg.AI.BaseURL = getEnv("AI_BASE_URL", "https://api.groq.com/openai")
	cfg.AI.APIKey = firstEnv("AI_API_KEY", "GROQ_API_KEY", "")
	cfg.AI.Model = getEnv("AI_MODEL", "llama3-8b-8192")

	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "qline.events")

	var err error
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWT.AccessTTL, err = getDuration("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWT.RefreshTTL, err = getDuration("JWT_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AI.Timeout, err = getDuration("AI_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AI.CacheTTL, err = getDuration("INSIGHTS_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Queue.PerPersonMinutes, err = getInt("PER_PERSON_MINUTES", 2); err != nil {
		return nil, err
	}
	if cfg.Queue.MinWaitMinutes, err = getInt("MIN_WAIT_MINUTES", 5); err != nil {
		return nil, err
	}
	if cfg.Queue.PositionNotifyThreshold, err = getInt("POSITION_NOTIFY_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.Queue.EntryMaxAge, err = getDuration("ENTRY_MAX_AGE", 0); err != nil {
		return nil, err
	}
	if cfg.Queue.AnonDedupByContact, err = getBool("ANON_DEDUP_BY_CONTACT", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_NAME are required")
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.Queue.PerPersonMinutes <= 0 {
		return errors.New("config: PER_PERSON_MINUTES must be positive")
	}
	if c.Queue.MinWaitMinutes < 0 {
		return errors.New("config: MIN_WAIT_MINUTES must not be negative")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// RedisEnabled сообщает, настроен ли Redis (кэш подсказок и очередь писем).
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Пакет config — загрузка и валидация конфигурации siteadmin
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранилища документов.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config содержит все параметры конфигурации siteadmin.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// --- Хранилище документов ---

	// Бэкенд: postgres, sqlite, memory
	StoreBackend string
	// Таймаут одной операции хранилища
	StoreOpTimeout time.Duration
	// Путь к файлу SQLite
	SQLitePath string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Хранилище файлов (изображения блога) ---

	// Корневой каталог
	BlobDir string
	// Публичный URL, с которого раздаются файлы
	BlobPublicURL string
	// Максимальный размер загружаемого файла в байтах
	BlobMaxSize int64

	// --- Списки ---

	// Размер страницы по умолчанию
	PageSize int
	// Количество кэшируемых справочников
	XRefCacheSize int
	// Время жизни справочника в кэше
	XRefCacheTTL time.Duration

	// --- JWT ---

	// Включена ли проверка JWT (false только для локальной разработки)
	AuthEnabled bool
	// URL JWKS endpoint
	JWTJWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое расхождение часов
	JWTLeeway time.Duration

	// --- topologymetrics ---

	// Группа сервиса в топологии
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SA_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("SA_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("SA_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("SA_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SA_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.ReadTimeout, err = getEnvDuration("SA_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SA_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getEnvDuration("SA_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("SA_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.IdleTimeout, err = getEnvDuration("SA_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SA_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Хранилище документов ---

	// SA_STORE_BACKEND — бэкенд (по умолчанию postgres)
	cfg.StoreBackend = strings.ToLower(getEnvDefault("SA_STORE_BACKEND", BackendPostgres))
	switch cfg.StoreBackend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("SA_STORE_BACKEND: недопустимое значение %q, допустимые: postgres, sqlite, memory", cfg.StoreBackend)
	}

	// SA_STORE_OP_TIMEOUT — таймаут операции (по умолчанию 30s)
	cfg.StoreOpTimeout, err = getEnvDuration("SA_STORE_OP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SA_STORE_OP_TIMEOUT: %w", err)
	}
	if cfg.StoreOpTimeout <= 0 {
		return nil, fmt.Errorf("SA_STORE_OP_TIMEOUT: значение должно быть положительным")
	}

	cfg.SQLitePath = getEnvDefault("SA_SQLITE_PATH", "siteadmin.db")

	// --- PostgreSQL (обязательные параметры только для бэкенда postgres) ---

	cfg.DBPort, err = getEnvInt("SA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SA_DB_PORT: %w", err)
	}
	cfg.DBSSLMode = getEnvDefault("SA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	if cfg.StoreBackend == BackendPostgres {
		if cfg.DBHost, err = getEnvRequired("SA_DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.DBName, err = getEnvRequired("SA_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("SA_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("SA_DB_PASSWORD"); err != nil {
			return nil, err
		}
	}

	// --- Хранилище файлов ---

	cfg.BlobDir = getEnvDefault("SA_BLOB_DIR", "./data/blobs")
	cfg.BlobPublicURL = strings.TrimRight(getEnvDefault("SA_BLOB_PUBLIC_URL", "/media"), "/")

	maxSize, err := getEnvInt("SA_BLOB_MAX_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("SA_BLOB_MAX_SIZE: %w", err)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("SA_BLOB_MAX_SIZE: значение должно быть положительным")
	}
	cfg.BlobMaxSize = int64(maxSize)

	// --- Списки ---

	// SA_PAGE_SIZE — размер страницы (по умолчанию 10)
	cfg.PageSize, err = getEnvInt("SA_PAGE_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("SA_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 500 {
		return nil, fmt.Errorf("SA_PAGE_SIZE: значение %d вне допустимого диапазона 1-500", cfg.PageSize)
	}

	cfg.XRefCacheSize, err = getEnvInt("SA_XREF_CACHE_SIZE", 32)
	if err != nil {
		return nil, fmt.Errorf("SA_XREF_CACHE_SIZE: %w", err)
	}
	if cfg.XRefCacheSize < 1 {
		return nil, fmt.Errorf("SA_XREF_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.XRefCacheTTL, err = getEnvDuration("SA_XREF_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SA_XREF_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	cfg.AuthEnabled, err = getEnvBool("SA_AUTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("SA_AUTH_ENABLED: %w", err)
	}
	cfg.JWTJWKSURL = getEnvDefault("SA_JWT_JWKS_URL", "")
	if cfg.AuthEnabled && cfg.JWTJWKSURL == "" {
		return nil, fmt.Errorf("SA_JWT_JWKS_URL: обязательная переменная окружения не задана (или SA_AUTH_ENABLED=false)")
	}
	cfg.JWTIssuer = getEnvDefault("SA_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("SA_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SA_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SA_DEPHEALTH_GROUP", "siteadmin")
	cfg.DephealthCheckInterval, err = getEnvDuration("SA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

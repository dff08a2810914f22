// Пакет config — загрузка и валидация конфигурации portfolio-server
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Размеры по умолчанию.
const (
	MiB = 1 << 20
	GiB = 1 << 30
)

// Config содержит все параметры конфигурации portfolio-server.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория загруженных файлов
	UploadDir string
	// Публичный URL-префикс, под которым отдаются загруженные файлы
	UploadURLPrefix string
	// Путь к JSON-документу с контентом портфолио
	DataPath string

	// Учётные данные администратора
	AdminUser     string
	AdminPassword string
	// Имя session cookie и её значение-маркер после успешного входа
	SessionCookie string
	SessionValue  string
	// Время жизни session cookie
	SessionMaxAge time.Duration
	// Secure flag для cookie (HTTPS)
	CookieSecure bool

	// Потолок размера изображений
	ImageMaxSize int64
	// Потолок размера видео
	VideoMaxSize int64
	// Максимальный размер тела запроса загрузки (multipart целиком)
	MaxRequestBody int64
	// Размер чанка при записи на диск
	WriteChunkSize int
	// Общий таймаут запроса загрузки
	UploadTimeout time.Duration
	// Таймаут загрузки миниатюры
	ThumbnailTimeout time.Duration

	// Максимальный размер одного чанка в режиме chunked upload
	ChunkMaxSize int64
	// Время жизни незавершённой chunked-сессии
	ChunkSessionTTL time.Duration
	// Максимальное число одновременных chunked-сессий
	ChunkSessionLimit int
	// Интервал очистки брошенных chunked-сессий
	GCInterval time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
}

// LoadDotEnv подгружает переменные из .env файла, если он существует.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// PF_PORT — порт HTTP-сервера (по умолчанию 3000)
	port, err := getEnvInt("PF_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("PF_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("PF_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	cfg.UploadDir = getEnvDefault("PF_UPLOAD_DIR", "./public/uploads")

	// PF_UPLOAD_URL_PREFIX — всегда с ведущим и без завершающего слэша
	prefix := "/" + strings.Trim(getEnvDefault("PF_UPLOAD_URL_PREFIX", "/uploads"), "/")
	if prefix == "/" {
		return nil, fmt.Errorf("PF_UPLOAD_URL_PREFIX: префикс не может быть корнем")
	}
	cfg.UploadURLPrefix = prefix

	// PF_DATA_PATH, затем PORTFOLIO_DATA_PATH (совместимость с persistent disk), затем ./data.json
	cfg.DataPath = getEnvDefault("PF_DATA_PATH", getEnvDefault("PORTFOLIO_DATA_PATH", "./data.json"))

	cfg.AdminUser = getEnvDefault("PF_ADMIN_USER", "admin")
	cfg.AdminPassword = getEnvDefault("PF_ADMIN_PASSWORD", "admin123")
	cfg.SessionCookie = getEnvDefault("PF_SESSION_COOKIE", "admin_session")
	cfg.SessionValue = getEnvDefault("PF_SESSION_VALUE", "authenticated")

	cfg.SessionMaxAge, err = getEnvDuration("PF_SESSION_MAX_AGE", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PF_SESSION_MAX_AGE: %w", err)
	}

	cfg.CookieSecure, err = getEnvBool("PF_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("PF_COOKIE_SECURE: %w", err)
	}

	// Потолки размеров: изображения 10 MiB, видео 500 MiB
	cfg.ImageMaxSize, err = getEnvPositiveInt64("PF_IMAGE_MAX_SIZE", 10*MiB)
	if err != nil {
		return nil, err
	}
	cfg.VideoMaxSize, err = getEnvPositiveInt64("PF_VIDEO_MAX_SIZE", 500*MiB)
	if err != nil {
		return nil, err
	}

	// PF_MAX_REQUEST_BODY — должен вмещать видео максимального размера
	// вместе с multipart-обвязкой, иначе 400 TooLarge станет недостижим.
	cfg.MaxRequestBody, err = getEnvPositiveInt64("PF_MAX_REQUEST_BODY", GiB)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRequestBody < cfg.VideoMaxSize {
		return nil, fmt.Errorf("PF_MAX_REQUEST_BODY: значение %d должно быть >= PF_VIDEO_MAX_SIZE (%d)",
			cfg.MaxRequestBody, cfg.VideoMaxSize)
	}

	chunkSize, err := getEnvPositiveInt64("PF_WRITE_CHUNK_SIZE", MiB)
	if err != nil {
		return nil, err
	}
	if chunkSize > 64*MiB {
		return nil, fmt.Errorf("PF_WRITE_CHUNK_SIZE: значение %d превышает 64 MiB", chunkSize)
	}
	cfg.WriteChunkSize = int(chunkSize)

	cfg.UploadTimeout, err = getEnvPositiveDuration("PF_UPLOAD_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ThumbnailTimeout, err = getEnvPositiveDuration("PF_THUMBNAIL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.ChunkMaxSize, err = getEnvPositiveInt64("PF_CHUNK_MAX_SIZE", 64*MiB)
	if err != nil {
		return nil, err
	}
	cfg.ChunkSessionTTL, err = getEnvPositiveDuration("PF_CHUNK_SESSION_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.ChunkSessionLimit, err = getEnvInt("PF_CHUNK_SESSION_LIMIT", 256)
	if err != nil {
		return nil, fmt.Errorf("PF_CHUNK_SESSION_LIMIT: %w", err)
	}
	if cfg.ChunkSessionLimit <= 0 {
		return nil, fmt.Errorf("PF_CHUNK_SESSION_LIMIT: значение должно быть положительным")
	}
	cfg.GCInterval, err = getEnvPositiveDuration("PF_GC_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	// PF_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PF_LOG_LEVEL: %w", err)
	}

	// PF_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvPositiveDuration("PF_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	// TLS — оба параметра или ни одного
	cfg.TLSCert = getEnvDefault("PF_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("PF_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("PF_TLS_CERT и PF_TLS_KEY должны задаваться вместе")
	}

	return cfg, nil
}

// UsesDefaultCredentials сообщает, что пароль администратора не переопределён.
func (c *Config) UsesDefaultCredentials() bool {
	return c.AdminPassword == "admin123"
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

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

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
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

// getEnvPositiveInt64 возвращает положительное int64 значение или значение по умолчанию.
func getEnvPositiveInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число: %q", key, val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %d", key, n)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 2m, 1h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой d > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: длительность должна быть положительной, получено %s", key, d)
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

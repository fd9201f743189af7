package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	APIKey          string
	RateLimitRPS    float64
	RateLimitBurst  int

	ObjectStoreType string
	LocalStoreDir   string
	ObjectCacheDir  string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	MaxUploadBytes  int64
	UploadRetention time.Duration
	SweepInterval   time.Duration

	OpenAIAPIKey     string
	OCRVisionModel   string
	FieldsModel      string
	OCRLanguages     []string
	OCRDPI           int
	OCRMaxPages      int
	OCRPageTimeout   time.Duration
	OCRRasterTimeout time.Duration
	FieldsTimeout    time.Duration
	PdftoppmPath     string

	DatabaseURL string

	SQSQueueURL       string
	WorkerConcurrency int
	VisibilitySeconds int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" && !isDevLike(env) {
		log.Printf("DATABASE_URL is empty in %s; startup will fail until it is set", env)
	}
	localDir := getEnv("LOCAL_STORE_DIR", "./uploads")

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		APIKey:          strings.TrimSpace(os.Getenv("API_KEY")),
		RateLimitRPS:    getFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:  getInt("RATE_LIMIT_BURST", 10),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   localDir,
		ObjectCacheDir:  getEnv("OBJECT_CACHE_DIR", filepath.Join(localDir, "cache")),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		MaxUploadBytes:  int64(getInt("MAX_UPLOAD_BYTES", 20<<20)),
		UploadRetention: getDuration("UPLOAD_RETENTION", 0),
		SweepInterval:   getDuration("UPLOAD_SWEEP_INTERVAL", time.Hour),

		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OCRVisionModel:   getEnv("OCR_VISION_MODEL", "gpt-4o-mini"),
		FieldsModel:      getEnv("FIELDS_MODEL", "gpt-4.1-mini"),
		OCRLanguages:     splitLanguages(getEnv("OCR_LANGUAGES", "eng+tur")),
		OCRDPI:           getInt("OCR_DPI", 200),
		OCRMaxPages:      getInt("OCR_MAX_PAGES", 0),
		OCRPageTimeout:   getDuration("OCR_PAGE_TIMEOUT", 60*time.Second),
		OCRRasterTimeout: getDuration("OCR_RASTER_TIMEOUT", 120*time.Second),
		FieldsTimeout:    getDuration("FIELDS_TIMEOUT", 60*time.Second),
		PdftoppmPath:     getEnv("PDFTOPPM_PATH", "pdftoppm"),

		DatabaseURL: dbURL,

		SQSQueueURL:       strings.TrimSpace(os.Getenv("SQS_QUEUE_URL")),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 4),
		VisibilitySeconds: getInt("SQS_VISIBILITY_TIMEOUT_SECONDS", 900),
	}
}

// IsDevLike reports whether env allows in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return isDevLike(c.Env)
}

func isDevLike(env string) bool {
	switch env {
	case "dev", "local", "":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitLanguages accepts tesseract-style "eng+tur" as well as "eng,tur".
func splitLanguages(raw string) []string {
	return splitAndTrim(strings.ReplaceAll(raw, "+", ","))
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

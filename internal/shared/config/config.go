package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	DatabaseURL string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string

	SQSQueueURL string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DetectionModel  string
	AnalysisModel   string
	VisionModel     string
	EmbeddingModel  string
	EmbeddingDim    int
	CallTimeout     time.Duration
	SchemaRetries   int
	TransientRetrys int

	ChunkSizeTokens    int
	ChunkOverlapTokens int
	EmbedBatchSize     int
	EmbedRatePerSecond int

	RasterizerPath string
	TesseractPath  string
	OCRLanguage    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,

		DatabaseURL: dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),

		SQSQueueURL: getEnv("CL_SQS_QUEUE_URL", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DetectionModel:  getEnv("DETECTION_MODEL", "gpt-4.1-mini"),
		AnalysisModel:   getEnv("ANALYSIS_MODEL", "o4-mini"),
		VisionModel:     getEnv("VISION_MODEL", "gpt-4o"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDim:    getEnvInt("EMBEDDING_DIMENSIONS", 3072),
		CallTimeout:     time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		SchemaRetries:   getEnvInt("LLM_SCHEMA_RETRIES", 1),
		TransientRetrys: getEnvInt("LLM_TRANSIENT_RETRIES", 1),

		ChunkSizeTokens:    getEnvInt("CHUNK_SIZE_TOKENS", 800),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 100),
		EmbedBatchSize:     getEnvInt("EMBED_BATCH_SIZE", 20),
		EmbedRatePerSecond: getEnvInt("EMBED_RATE_PER_SECOND", 5),

		RasterizerPath: getEnv("PDFTOPPM_PATH", "pdftoppm"),
		TesseractPath:  getEnv("TESSERACT_PATH", "tesseract"),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, val, def)
		return def
	}
	return parsed
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

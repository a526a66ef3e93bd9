package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage, queue and notifier drivers accepted by LoadConfig.
const (
	StoreDriverDynamo   = "dynamodb"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ObjectDriverS3         = "s3"
	ObjectDriverMinio      = "minio"
	ObjectDriverFilesystem = "filesystem"

	NotifierDriverSNS   = "sns"
	NotifierDriverRedis = "redis"
	NotifierDriverLog   = "log"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	JWTSecret        string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
	MaxUploadBytes   int64

	AWSRegion   string
	AWSEndpoint string

	StoreDriver     string
	JobsTable       string
	BatchJobsTable  string
	BatchIndexName  string
	DatabaseURL     string
	DBMaxConns      int
	JobTTL          time.Duration
	ObjectDriver    string
	Bucket          string
	StoragePath     string
	StorageBaseURL  string
	StorageSignKey  string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	MinioRegion     string
	MinioSSE        bool
	UploadURLTTL    time.Duration
	DownloadURLTTL  time.Duration
	AnalysisURLTTL  time.Duration
	MaxEditedImageB int64
	ImageMaxDim     int
	ImageQuality    int

	QueueURL          string
	DeadLetterURL     string
	MaxReceiveCount   int
	QueueWaitTime     time.Duration
	VisibilityTimeout time.Duration

	NotifierDriver string
	TopicARN       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisChannel   string

	AnalysisProvider string
	EditingProvider  string
	DefaultPrompt    string
	ProviderTimeout  time.Duration
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiBaseURL    string
	SeedreamAPIKey   string
	SeedreamModel    string
	SeedreamBaseURL  string
	SSMGeminiKeyName string
	SSMSeedreamName  string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 25<<20)),

		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint: os.Getenv("AWS_ENDPOINT_URL"),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverDynamo)),
		JobsTable:       getEnv("JOBS_TABLE", "photoflow-jobs"),
		BatchJobsTable:  getEnv("BATCH_JOBS_TABLE", "photoflow-batch-jobs"),
		BatchIndexName:  getEnv("JOBS_BATCH_INDEX", "batchJobId-index"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxConns:      getEnvInt("DB_MAX_CONNS", 10),
		JobTTL:          getEnvDuration("JOB_TTL", 7*24*time.Hour),
		ObjectDriver:    strings.ToLower(getEnv("OBJECT_STORE_DRIVER", ObjectDriverS3)),
		Bucket:          os.Getenv("MEDIA_BUCKET_NAME"),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		StorageSignKey:  os.Getenv("STORAGE_SIGNING_KEY"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minio"),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", "minio123"),
		MinioUseSSL:     strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		MinioRegion:     os.Getenv("MINIO_REGION"),
		MinioSSE:        strings.EqualFold(os.Getenv("MINIO_SSE"), "true"),
		UploadURLTTL:    getEnvDuration("UPLOAD_URL_TTL", 15*time.Minute),
		DownloadURLTTL:  getEnvDuration("DOWNLOAD_URL_TTL", time.Hour),
		AnalysisURLTTL:  getEnvDuration("ANALYSIS_URL_TTL", 10*time.Minute),
		MaxEditedImageB: int64(getEnvInt("MAX_EDITED_IMAGE_BYTES", 25<<20)),
		ImageMaxDim:     getEnvInt("IMAGE_MAX_DIMENSION", 2048),
		ImageQuality:    getEnvInt("IMAGE_JPEG_QUALITY", 82),

		QueueURL:          os.Getenv("UPLOAD_QUEUE_URL"),
		DeadLetterURL:     os.Getenv("UPLOAD_DLQ_URL"),
		MaxReceiveCount:   getEnvInt("QUEUE_MAX_RECEIVE_COUNT", 3),
		QueueWaitTime:     getEnvDuration("QUEUE_WAIT_TIME", 20*time.Second),
		VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),

		NotifierDriver: strings.ToLower(getEnv("NOTIFIER_DRIVER", NotifierDriverSNS)),
		TopicARN:       os.Getenv("NOTIFICATION_TOPIC_ARN"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisChannel:   getEnv("REDIS_CHANNEL", "photoflow:notifications"),

		AnalysisProvider: strings.ToLower(getEnv("ANALYSIS_PROVIDER", "gemini")),
		EditingProvider:  strings.ToLower(getEnv("EDITING_PROVIDER", "gemini")),
		DefaultPrompt:    getEnv("DEFAULT_PROMPT", "Enhance this photo: balance exposure, correct colors and improve clarity while keeping it natural."),
		ProviderTimeout:  getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		SeedreamAPIKey:   os.Getenv("SEEDREAM_API_KEY"),
		SeedreamModel:    getEnv("SEEDREAM_MODEL", "seedream-4-0-250828"),
		SeedreamBaseURL:  getEnv("SEEDREAM_BASE_URL", "https://ark.ap-southeast.bytepluses.com/api/v3"),
		SSMGeminiKeyName: os.Getenv("SSM_GEMINI_API_KEY_PARAM"),
		SSMSeedreamName:  os.Getenv("SSM_SEEDREAM_API_KEY_PARAM"),
	}
	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/v1/files", cfg.Port))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverDynamo, StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ObjectDriver {
	case ObjectDriverS3, ObjectDriverMinio:
		if c.Bucket == "" {
			return fmt.Errorf("MEDIA_BUCKET_NAME is required for OBJECT_STORE_DRIVER=%s", c.ObjectDriver)
		}
	case ObjectDriverFilesystem:
		if c.StorageSignKey == "" {
			return fmt.Errorf("STORAGE_SIGNING_KEY is required for OBJECT_STORE_DRIVER=%s", c.ObjectDriver)
		}
		if c.Bucket == "" {
			c.Bucket = "local"
		}
	default:
		return fmt.Errorf("unsupported OBJECT_STORE_DRIVER %q", c.ObjectDriver)
	}

	switch c.NotifierDriver {
	case NotifierDriverLog, NotifierDriverRedis:
	case NotifierDriverSNS:
		if c.TopicARN == "" {
			return fmt.Errorf("NOTIFICATION_TOPIC_ARN is required for NOTIFIER_DRIVER=%s", c.NotifierDriver)
		}
	default:
		return fmt.Errorf("unsupported NOTIFIER_DRIVER %q", c.NotifierDriver)
	}

	if c.MaxReceiveCount <= 0 {
		return fmt.Errorf("QUEUE_MAX_RECEIVE_COUNT must be positive")
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("JOB_TTL must be positive")
	}
	return nil
}

// RequireAPI checks the settings only the HTTP API needs.
func (c *Config) RequireAPI() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// RequireQueue checks the settings the long-poll worker and redrive need.
func (c *Config) RequireQueue() error {
	if c.QueueURL == "" {
		return fmt.Errorf("UPLOAD_QUEUE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

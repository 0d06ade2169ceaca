package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment       string
	Addr              string
	DatabaseURL       string
	MigrationsDir     string
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	BlobBackend       string
	UploadDir         string
	PublicBaseURL     string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PublicURL       string
	S3AccessKey       string
	S3SecretKey       string
	MaxImageBytes     int64
	CommentFeedListen bool
	FeedHeartbeat     time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string
	TrustedProxies    []string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:       GetString("APP_ENV", "development"),
		Addr:              GetString("API_ADDR", ":4000"),
		DatabaseURL:       GetString("DATABASE_URL", "postgres://technews:technews@db:5432/technews?sslmode=disable"),
		MigrationsDir:     GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:         GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:    GetDuration("ACCESS_TOKEN_TTL_MIN", time.Minute, 60*time.Minute),
		RedisAddr:         GetString("REDIS_ADDR", ""),
		RedisPassword:     GetString("REDIS_PASSWORD", ""),
		RedisDB:           GetInt("REDIS_DB", 0),
		BlobBackend:       GetString("BLOB_BACKEND", "local"),
		UploadDir:         GetString("UPLOAD_DIR", "./data/uploads"),
		PublicBaseURL:     GetString("PUBLIC_BASE_URL", "http://localhost:4000"),
		S3Bucket:          GetString("S3_BUCKET", ""),
		S3Region:          GetString("S3_REGION", "us-east-1"),
		S3Endpoint:        GetString("S3_ENDPOINT", ""),
		S3PublicURL:       GetString("S3_PUBLIC_URL", ""),
		S3AccessKey:       GetString("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:       GetString("S3_SECRET_ACCESS_KEY", ""),
		MaxImageBytes:     GetInt64("MAX_IMAGE_BYTES", 5_000_000),
		CommentFeedListen: GetBool("COMMENT_FEED_LISTEN", true),
		FeedHeartbeat:     GetDuration("FEED_HEARTBEAT_SECONDS", time.Second, 25*time.Second),
		ShutdownTimeout:   GetDuration("SHUTDOWN_TIMEOUT_SECONDS", time.Second, 10*time.Second),
		LogLevel:          GetString("LOG_LEVEL", "info"),
		TrustedProxies:    GetList("TRUSTED_PROXIES", nil),
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Render    RenderConfig
	Queue     QueueConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	R2        R2Config
	GDrive    GDriveConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	PublicURL   string
	BodyLimitMB int
}

// Render engine names
const (
	EngineSimulated = "simulated"
	EngineRemotion  = "remotion"
	EngineFFmpeg    = "ffmpeg"
)

type RenderConfig struct {
	Engine        string
	RendersDir    string
	AssetsDir     string
	CompositionID string
	Codec         string
	Concurrency   int

	// remotion
	RemotionBin   string
	EntryPoint    string
	WorkDir       string
	ChromiumFlags string

	// ffmpeg
	FFmpegBin string

	// simulated
	FrameDelay time.Duration
}

// Dispatcher and store backends
const (
	DispatcherLocal = "local"
	DispatcherAsynq = "asynq"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type QueueConfig struct {
	Dispatcher string
	Store      string
	AsynqQueue string
	StoreTTL   time.Duration

	// WorkerLeaseTTL bounds how long a crashed asynq worker keeps the
	// render slot before another process may take it.
	WorkerLeaseTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	RenderPerHour int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Endpoint        string
	Region          string
	Prefix          string
	SignedURLTTL    time.Duration
}

// Enabled reports whether enough is configured to build an S3 client.
func (c R2Config) Enabled() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

type GDriveConfig struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountJSON string
	FolderID           string
}

// Enabled reports whether either Drive credential flavour is configured.
func (c GDriveConfig) Enabled() bool {
	return c.ServiceAccountJSON != "" || (c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != "")
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_DSN")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("GDRIVE_CLIENT_SECRET")
	readSecret("GDRIVE_REFRESH_TOKEN")
	readSecret("SERVICE_ACCOUNT_JSON")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.public_url", "PUBLIC_URL")
	_ = viper.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = viper.BindEnv("render.engine", "RENDER_ENGINE")
	_ = viper.BindEnv("render.renders_dir", "RENDERS_DIR")
	_ = viper.BindEnv("render.assets_dir", "ASSETS_DIR")
	_ = viper.BindEnv("render.composition_id", "COMPOSITION_ID")
	_ = viper.BindEnv("render.codec", "RENDER_CODEC")
	_ = viper.BindEnv("render.concurrency", "RENDER_CONCURRENCY")
	_ = viper.BindEnv("render.remotion_bin", "REMOTION_BIN")
	_ = viper.BindEnv("render.entry_point", "REMOTION_ENTRY_POINT")
	_ = viper.BindEnv("render.work_dir", "REMOTION_WORK_DIR")
	_ = viper.BindEnv("render.chromium_flags", "CHROMIUM_FLAGS")
	_ = viper.BindEnv("render.ffmpeg_bin", "FFMPEG_BIN")
	_ = viper.BindEnv("render.frame_delay", "RENDER_FRAME_DELAY")
	_ = viper.BindEnv("queue.dispatcher", "QUEUE_DISPATCHER")
	_ = viper.BindEnv("queue.store", "QUEUE_STORE")
	_ = viper.BindEnv("queue.asynq_queue", "ASYNQ_QUEUE")
	_ = viper.BindEnv("queue.store_ttl", "QUEUE_STORE_TTL")
	_ = viper.BindEnv("queue.worker_lease_ttl", "QUEUE_WORKER_LEASE_TTL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.render_per_hour", "RATELIMIT_RENDER_PER_HOUR")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = viper.BindEnv("r2.region", "R2_REGION")
	_ = viper.BindEnv("r2.prefix", "R2_PREFIX")
	_ = viper.BindEnv("r2.signed_url_ttl", "R2_SIGNED_URL_TTL")
	_ = viper.BindEnv("gdrive.client_id", "GDRIVE_CLIENT_ID")
	_ = viper.BindEnv("gdrive.client_secret", "GDRIVE_CLIENT_SECRET")
	_ = viper.BindEnv("gdrive.refresh_token", "GDRIVE_REFRESH_TOKEN")
	_ = viper.BindEnv("gdrive.service_account_json", "SERVICE_ACCOUNT_JSON")
	_ = viper.BindEnv("gdrive.folder_id", "GDRIVE_FOLDER_ID")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.body_limit_mb", 100)

	// Render defaults
	viper.SetDefault("render.engine", EngineSimulated)
	viper.SetDefault("render.renders_dir", "renders")
	viper.SetDefault("render.assets_dir", "public")
	viper.SetDefault("render.composition_id", "CineVideo")
	viper.SetDefault("render.codec", "h264")
	viper.SetDefault("render.concurrency", 1)
	viper.SetDefault("render.remotion_bin", "./node_modules/.bin/remotion")
	viper.SetDefault("render.entry_point", "remotion/index.ts")
	viper.SetDefault("render.chromium_flags", "--no-sandbox --disable-setuid-sandbox --disable-dev-shm-usage --disable-gpu")
	viper.SetDefault("render.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("render.frame_delay", 10*time.Millisecond)

	// Queue defaults
	viper.SetDefault("queue.dispatcher", DispatcherLocal)
	viper.SetDefault("queue.store", StoreMemory)
	viper.SetDefault("queue.asynq_queue", "render")
	viper.SetDefault("queue.store_ttl", time.Duration(0))
	viper.SetDefault("queue.worker_lease_ttl", 30*time.Second)

	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.render_per_hour", 30)

	// Object storage defaults
	viper.SetDefault("r2.region", "auto")
	viper.SetDefault("r2.prefix", "renders/")
	viper.SetDefault("r2.signed_url_ttl", 24*time.Hour)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			PublicURL:   strings.TrimRight(viper.GetString("server.public_url"), "/"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
		},
		Render: RenderConfig{
			Engine:        strings.ToLower(viper.GetString("render.engine")),
			RendersDir:    viper.GetString("render.renders_dir"),
			AssetsDir:     viper.GetString("render.assets_dir"),
			CompositionID: viper.GetString("render.composition_id"),
			Codec:         viper.GetString("render.codec"),
			Concurrency:   viper.GetInt("render.concurrency"),
			RemotionBin:   viper.GetString("render.remotion_bin"),
			EntryPoint:    viper.GetString("render.entry_point"),
			WorkDir:       viper.GetString("render.work_dir"),
			ChromiumFlags: viper.GetString("render.chromium_flags"),
			FFmpegBin:     viper.GetString("render.ffmpeg_bin"),
			FrameDelay:    viper.GetDuration("render.frame_delay"),
		},
		Queue: QueueConfig{
			Dispatcher:     strings.ToLower(viper.GetString("queue.dispatcher")),
			Store:          strings.ToLower(viper.GetString("queue.store")),
			AsynqQueue:     viper.GetString("queue.asynq_queue"),
			StoreTTL:       viper.GetDuration("queue.store_ttl"),
			WorkerLeaseTTL: viper.GetDuration("queue.worker_lease_ttl"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			DSN: viper.GetString("postgres.dsn"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: viper.GetInt("ratelimit.render_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       strings.TrimRight(viper.GetString("r2.public_url"), "/"),
			Endpoint:        viper.GetString("r2.endpoint"),
			Region:          viper.GetString("r2.region"),
			Prefix:          viper.GetString("r2.prefix"),
			SignedURLTTL:    viper.GetDuration("r2.signed_url_ttl"),
		},
		GDrive: GDriveConfig{
			ClientID:           viper.GetString("gdrive.client_id"),
			ClientSecret:       viper.GetString("gdrive.client_secret"),
			RefreshToken:       viper.GetString("gdrive.refresh_token"),
			ServiceAccountJSON: viper.GetString("gdrive.service_account_json"),
			FolderID:           viper.GetString("gdrive.folder_id"),
		},
	}

	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:" + cfg.Server.Port
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Render.Engine {
	case EngineSimulated, EngineRemotion, EngineFFmpeg:
	default:
		return fmt.Errorf("unknown render engine %q", c.Render.Engine)
	}

	switch c.Queue.Dispatcher {
	case DispatcherLocal:
	case DispatcherAsynq:
		if c.Redis.Addr == "" {
			return fmt.Errorf("queue.dispatcher %q requires redis.addr", c.Queue.Dispatcher)
		}
		if c.Queue.WorkerLeaseTTL < time.Second {
			return fmt.Errorf("queue.worker_lease_ttl must be at least 1s, got %s", c.Queue.WorkerLeaseTTL)
		}
	default:
		return fmt.Errorf("unknown queue dispatcher %q", c.Queue.Dispatcher)
	}

	switch c.Queue.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("queue.store %q requires redis.addr", c.Queue.Store)
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("queue.store %q requires postgres.dsn", c.Queue.Store)
		}
	default:
		return fmt.Errorf("unknown queue store %q", c.Queue.Store)
	}

	if c.Render.Concurrency < 1 {
		c.Render.Concurrency = 1
	}
	return nil
}

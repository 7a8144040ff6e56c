package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port       string `envconfig:"PORT" default:"8080"`
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	JWTSecret  string `envconfig:"SUPABASE_LOCAL_JWT_SECRET" required:"true"`

	// Upstream model provider (OpenAI-compatible)
	ProviderBaseURL      string `envconfig:"PROVIDER_BASE_URL" required:"true"`
	ProviderAPIKey       string `envconfig:"PROVIDER_API_KEY"`
	ProviderTimeoutSec   int    `envconfig:"PROVIDER_TIMEOUT_SEC" default:"120"`
	ProviderAPIKeySecret string `envconfig:"PROVIDER_API_KEY_SECRET"` // Secret Manager secret name, overrides PROVIDER_API_KEY
	GCPProjectID         string `envconfig:"GCP_PROJECT_ID"`
	UsageExportTopic     string `envconfig:"USAGE_EXPORT_TOPIC" default:"usage-events"`

	// Quota enforcement
	UpgradeURL               string `envconfig:"UPGRADE_URL" default:"https://chatapi.app/pricing"`
	CompletionTokenAllowance int64  `envconfig:"COMPLETION_TOKEN_ALLOWANCE" default:"2000"`
	RecorderQueueSize        int    `envconfig:"RECORDER_QUEUE_SIZE" default:"1024"`
	RecorderWorkers          int    `envconfig:"RECORDER_WORKERS" default:"2"`

	// S3-compatible storage for usage report exports
	S3URL       string `envconfig:"SUPABASE_LOCAL_S3_URL"`
	S3Bucket    string `envconfig:"SUPABASE_LOCAL_S3_BUCKET"`
	S3Region    string `envconfig:"SUPABASE_LOCAL_S3_REGION"`
	S3AccessKey string `envconfig:"SUPABASE_LOCAL_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"SUPABASE_LOCAL_S3_SECRET_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatapi/internal/api/v1/handler"
	"chatapi/internal/config"
	"chatapi/internal/logger"
	"chatapi/internal/middleware"
	"chatapi/internal/pubsub"
	"chatapi/internal/quota"
	"chatapi/internal/recorder"
	"chatapi/internal/repository"
	"chatapi/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
)

// New wires the full application and returns the root handler together with
// the resources main must close on shutdown.
func New(cfg *config.Config) (http.Handler, *pgxpool.Pool, *recorder.Recorder, error) {
	log := logger.New()
	ctx := context.Background()

	// 1. Database pool
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating database pool: %w", err)
	}

	// 2. Provider API key, from Secret Manager when configured
	providerKey := cfg.ProviderAPIKey
	if cfg.ProviderAPIKeySecret != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating secret manager client: %w", err)
		}
		providerKey, err = sm.AccessSecret(ctx, cfg.ProviderAPIKeySecret)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading provider API key: %w", err)
		}
		_ = sm.Close()
	}
	if providerKey == "" {
		return nil, nil, nil, fmt.Errorf("no provider API key configured")
	}

	// 3. Optional Pub/Sub export of recorded usage events
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating Pub/Sub publisher: %w", err)
		}
		publisher = p
	}

	// 4. Validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 5. Repositories
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	chatRepo := repository.NewChatRepo(pool)

	// 6. Quota tables and services
	classifier := quota.NewDefaultClassifier()
	limits := quota.NewDefaultLimits()
	quotaSvc := service.NewQuotaService(userRepo, subRepo, usageRepo, classifier, limits, nil, log)
	providerClient := service.NewProviderClient(cfg.ProviderBaseURL, providerKey,
		time.Duration(cfg.ProviderTimeoutSec)*time.Second, log)
	chatSvc := service.NewChatService(chatRepo, providerClient, log)

	var exportSvc service.ExportService
	if cfg.S3URL != "" && cfg.S3Bucket != "" {
		s3Client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating S3 client: %w", err)
		}
		exportSvc = service.NewExportService(s3Client, cfg.S3Bucket, usageRepo, log)
	}

	// 7. Post-response usage recorder
	rec := recorder.New(usageRepo, cfg.RecorderQueueSize, cfg.RecorderWorkers, publisher, cfg.UsageExportTopic, log)
	rec.Start()

	// 8. Middleware
	authMw := middleware.AuthMiddleware(cfg.JWTSecret)
	estimator := service.NewTokenEstimator(cfg.CompletionTokenAllowance)
	quotaMw := middleware.QuotaMiddleware(quotaSvc, estimator, cfg.UpgradeURL, log)

	// 9. Handlers and routes
	chatHandler := handler.NewChatHandler(chatSvc, rec, classifier, validate, log)
	usageHandler := handler.NewUsageHandler(quotaSvc, exportSvc, log)

	apiV1Mux := http.NewServeMux()
	chatHandler.RegisterRoutes(apiV1Mux, authMw, quotaMw)
	usageHandler.RegisterRoutes(apiV1Mux, authMw)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger/", http.FileServer(http.Dir("./docs/swagger/swagger-ui"))))

	// Redirect root-level requests to /v1
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/swagger/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// 10. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, rec, nil
}

func newS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	}), nil
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}

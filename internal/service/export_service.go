package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatapi/internal/model"
	"chatapi/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ExportService uploads daily usage reports to S3-compatible object storage.
type ExportService interface {
	// ExportDaily writes the user's usage report for the UTC day containing
	// day and returns the object key.
	ExportDaily(ctx context.Context, userID string, day time.Time) (string, error)
}

type exportService struct {
	s3Client  *s3.Client
	bucket    string
	usageRepo repository.UsageRepository
	logger    zerolog.Logger
}

func NewExportService(s3Client *s3.Client, bucket string, usageRepo repository.UsageRepository, logger zerolog.Logger) ExportService {
	return &exportService{
		s3Client:  s3Client,
		bucket:    bucket,
		usageRepo: usageRepo,
		logger:    logger.With().Str("service", "ExportService").Logger(),
	}
}

type usageReport struct {
	UserID string                `json:"user_id"`
	Date   string                `json:"date"`
	Tiers  *model.DailyTierUsage `json:"usage"`
}

func (s *exportService) ExportDaily(ctx context.Context, userID string, day time.Time) (string, error) {
	usage, err := s.usageRepo.AggregateDaily(ctx, userID, day)
	if err != nil {
		return "", fmt.Errorf("building usage report for user %s: %w", userID, err)
	}

	report := usageReport{
		UserID: userID,
		Date:   usage.Date.Format("2006-01-02"),
		Tiers:  usage,
	}
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encoding usage report for user %s: %w", userID, err)
	}

	key := fmt.Sprintf("usage-reports/%s/%s.json", userID, report.Date)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("key", key).Msg("Failed to upload usage report")
		return "", fmt.Errorf("uploading usage report for user %s: %w", userID, err)
	}
	s.logger.Info().Str("user_id", userID).Str("key", key).Msg("Usage report exported")
	return key, nil
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/postpilot-app/postpilot/configs"
)

type MediaService interface {
	Upload(ctx context.Context, t string, data []byte) (string, error)
}

type mediaService struct {
	client *s3.Client
	bucket string
}

func NewMediaService(cfg *config.Config) (MediaService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID))
	})

	return &mediaService{client: client, bucket: cfg.R2.BucketName}, nil
}

// Upload validates the payload type and stores it under a random key.
// Only image and video content is accepted.
func (s *mediaService) Upload(ctx context.Context, tenantID string, data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("unable to detect file type: %w", err)
	}
	if !filetype.IsImage(data) && !filetype.IsVideo(data) {
		return "", fmt.Errorf("unsupported media type: %s", kind.MIME.Value)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Error(err.Error())
		return "", err
	}
	key := fmt.Sprintf("%s/%s.%s", tenantID, id, kind.Extension)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error uploading media: %w", err)
	}

	return key, nil
}

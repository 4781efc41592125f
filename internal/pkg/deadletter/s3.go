package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

type s3Sink struct {
	uploader *s3manager.Uploader
	bucket   string
	log      *logger.Logger
}

func newS3Sink(cfg config.DeadLetterS3Config, log *logger.Logger) (*s3Sink, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		DisableSSL:       aws.Bool(!cfg.UseSSL),
		S3ForcePathStyle: aws.Bool(cfg.Endpoint != ""),
		Endpoint:         aws.String(cfg.Endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("deadletter: creating aws session: %w", err)
	}

	return &s3Sink{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		log:      log,
	}, nil
}

func (s *s3Sink) Write(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("deadletter: marshaling entry: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", entry.Topic, uuid.NewString())
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.log.Warn("deadletter: s3 upload failed", "key", key, "error", err.Error())
		return err
	}
	return nil
}

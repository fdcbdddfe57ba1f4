package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/runner"
	"go.uber.org/zap"
)

var S3Client *s3.Client

func InitS3(logger *zap.Logger) error {
	endpoint := os.Getenv("S3_ENDPOINT_URL")
	accessKeyID := MustGetEnv("S3_ACCESS_KEY_ID")
	secretAccessKey := MustGetEnv("S3_SECRET_ACCESS_KEY")
	region := GetEnvOrDefault("S3_REGION", "us-east-1")

	sugar := logger.Sugar()
	sugar.Info("Initializing cloud storage service")

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true
		},
	}

	if endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		sugar.Info("Using custom storage endpoint configuration")
	} else {
		sugar.Info("Using default cloud storage configuration")
	}

	S3Client = s3.NewFromConfig(cfg, s3Options...)

	buckets, err := S3Client.ListBuckets(context.Background(), &s3.ListBucketsInput{})
	if err == nil {
		sugar.Info("Cloud storage service initialized successfully", "bucket_count", len(buckets.Buckets))
	}
	return err
}

// DownloadS3Object downloads an object from S3 and returns the data
func DownloadS3Object(ctx context.Context, bucket, key string) ([]byte, error) {
	if S3Client == nil {
		return nil, errors.New("s3 client is nil; call InitS3 first")
	}

	maxAttempts := getRetryMaxAttempts()
	retryDelay := getRetryDelay()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := getObject(ctx, bucket, key)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to download object after %d attempts: %w", maxAttempts, lastErr)
}

func getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

// getRetryMaxAttempts returns the maximum number of retry attempts from env, default 3
func getRetryMaxAttempts() int {
	maxAttemptsStr := GetEnvOrDefault("S3_RETRY_MAX_ATTEMPTS", "3")
	maxAttempts, err := strconv.Atoi(maxAttemptsStr)
	if err != nil || maxAttempts < 1 {
		return 3
	}
	return maxAttempts
}

// getRetryDelay returns the retry delay from env, default 2 seconds
func getRetryDelay() time.Duration {
	delayStr := GetEnvOrDefault("S3_RETRY_DELAY_SECONDS", "2")
	delay, err := strconv.Atoi(delayStr)
	if err != nil || delay < 0 {
		return 2 * time.Second
	}
	return time.Duration(delay) * time.Second
}

func UploadFile(ctx context.Context, bucket, key, contentType string, src io.Reader) error {
	if S3Client == nil {
		return errors.New("s3Client is nil; call InitS3 first")
	}
	_, err := S3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object failed: %w", err)
	}
	return nil
}

// ArchiveKey is where an archived job file lives in the bucket.
func ArchiveKey(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}

// Archive stores finished jobs in S3: the output, the payload that was
// fed to the model and the job metadata.
type Archive struct {
	Bucket string
	Logger *zap.Logger
}

func (a *Archive) Record(ctx context.Context, snap orchestrator.Snapshot) error {
	if strings.TrimSpace(snap.Output) != "" {
		if err := UploadFile(ctx, a.Bucket, ArchiveKey(snap.ID, "output.txt"), "text/plain; charset=utf-8",
			strings.NewReader(snap.Output)); err != nil {
			return fmt.Errorf("archive output: %w", err)
		}
	}

	if snap.PayloadDir != "" {
		f, err := os.Open(filepath.Join(snap.PayloadDir, runner.PayloadFileName))
		switch {
		case err == nil:
			err = UploadFile(ctx, a.Bucket, ArchiveKey(snap.ID, runner.PayloadFileName), "text/plain; charset=utf-8", f)
			f.Close()
			if err != nil {
				return fmt.Errorf("archive payload: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("open payload: %w", err)
		}
	}

	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := UploadFile(ctx, a.Bucket, ArchiveKey(snap.ID, "job.json"), "application/json",
		bytes.NewReader(meta)); err != nil {
		return fmt.Errorf("archive job: %w", err)
	}

	if a.Logger != nil {
		a.Logger.Info("Job archived",
			zap.String("job_id", snap.ID),
			zap.String("bucket", a.Bucket))
	}
	return nil
}

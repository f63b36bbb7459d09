package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/account-directory/internal/config"
)

// ObjectAPI is the part of the S3 client the store calls directly.
type ObjectAPI interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader is satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store keeps images in an S3-compatible bucket (MinIO in development).
type S3Store struct {
	client    ObjectAPI
	uploader  Uploader
	bucket    string
	publicURL string
	now       func() time.Time
}

func NewS3StoreWithClient(client ObjectAPI, uploader Uploader, bucket, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		uploader:  uploader,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// NewS3Store connects to the configured endpoint and makes sure the bucket exists.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = endpoint
	}

	return NewS3StoreWithClient(client, manager.NewUploader(client), cfg.Bucket, publicURL), nil
}

func ensureBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := client.HeadBucket(headCtx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		log.Info().Str("bucket", bucket).Msg("storage: bucket exists")
		return nil
	}

	log.Info().Str("bucket", bucket).Msg("storage: bucket not found, creating")

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
	}

	waiter := s3.NewBucketExistsWaiter(client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}, 30*time.Second); err != nil {
		return fmt.Errorf("failed waiting for bucket %q: %w", bucket, err)
	}

	return nil
}

func (s *S3Store) Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	key := fmt.Sprintf("%d-%s", s.now().UnixMilli(), SafeBaseName(filename))

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}

	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("storage: image uploaded")
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key), nil
}

func (s *S3Store) Remove(ctx context.Context, url string) error {
	key := url[strings.LastIndex(url, "/")+1:]
	if key == "" {
		return fmt.Errorf("invalid object url %q", url)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage works with AWS S3 and S3 compatible stores such as MinIO.
type S3Storage struct {
	client    *s3.Client
	bucket    string
	publicUrl string
	logger    *slog.Logger
}

type S3Args struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicUrl is the prefix for object urls, defaults to the virtual hosted
	// bucket address.
	PublicUrl    string
	UsePathStyle bool
}

func NewS3Storage(ctx context.Context, args S3Args, logger *slog.Logger) (*S3Storage, error) {
	if args.Bucket == "" {
		return nil, errors.New("s3 bucket must be specified")
	}

	region := args.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if args.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(args.AccessKey, args.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = args.UsePathStyle
		if args.Endpoint != "" {
			o.BaseEndpoint = aws.String(args.Endpoint)
		}
	})

	publicUrl := args.PublicUrl
	if publicUrl == "" {
		if args.Endpoint != "" {
			publicUrl = strings.TrimSuffix(args.Endpoint, "/") + "/" + args.Bucket
		} else {
			publicUrl = fmt.Sprintf("https://%v.s3.%v.amazonaws.com", args.Bucket, region)
		}
	}

	logger.Info("creating new s3 storage", "bucket", args.Bucket, "region", region, "endpoint", args.Endpoint)

	return &S3Storage{
		client:    client,
		bucket:    args.Bucket,
		publicUrl: strings.TrimSuffix(publicUrl, "/"),
		logger:    logger,
	}, nil
}

func objectKey(path string) string {
	return strings.TrimPrefix(path, "/")
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *S3Storage) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrFileNotFound, path)
		}
		s.logger.Error("error reading object", "key", path, "error", err)
		return nil, fmt.Errorf("error reading object %v: %w", path, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Write(ctx context.Context, path string, data io.Reader, contentType string) error {
	// PutObject needs a seekable body to compute the content length.
	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("error buffering object %v: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(path)),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("error writing object", "key", path, "error", err)
		return fmt.Errorf("error writing object %v: %w", path, err)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(path)),
	})
	if err != nil {
		s.logger.Error("error deleting object", "key", path, "error", err)
		return fmt.Errorf("error deleting object %v: %w", path, err)
	}
	return nil
}

func (s *S3Storage) head(ctx context.Context, path string) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(path)),
	})
}

func (s *S3Storage) Size(ctx context.Context, path string) (int64, error) {
	out, err := s.head(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %v", ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("error getting size of object %v: %w", path, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Storage) Usage() (UsageStats, error) {
	return UsageStats{}, ErrUsageNotSupported
}

func (s *S3Storage) URL(path string) string {
	segments := strings.Split(objectKey(path), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.publicUrl + "/" + strings.Join(segments, "/")
}

func (s *S3Storage) PathFromUrl(fileUrl string) (string, bool) {
	return pathFromPublicUrl(s.publicUrl, fileUrl)
}

var _ Storage = (*S3Storage)(nil)

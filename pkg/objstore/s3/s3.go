// Package s3 implements the objstore.Storage contract against an
// S3-compatible object store using aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/genbu-cloud/genbu/pkg/objstore"
)

// Config contains the connection settings for the object store.
type Config struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://127.0.0.1:9000"
	// for MinIO. Empty uses the SDK default resolution.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Region for signing. Defaults to us-east-1.
	Region string `mapstructure:"region" yaml:"region"`

	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// ForcePathStyle addresses buckets as path segments instead of
	// subdomains. Required for MinIO and most local stacks.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// Store is the S3-backed object storage adapter.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewClient builds an S3 client from configuration.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// New creates a Store around an existing client.
func New(client *s3.Client) *Store {
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}
}

// NewFromConfig dials the store from configuration.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client), nil
}

// EnsureBucket creates the bucket if it does not exist. Already-exists and
// already-owned-by-you both count as success.
func (s *Store) EnsureBucket(ctx context.Context, b objstore.Bucket) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.Name()),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return objstore.NewError("EnsureBucket", err)
	}
	return nil
}

// DeleteBucket removes a bucket. Debug reset only.
func (s *Store) DeleteBucket(ctx context.Context, b objstore.Bucket) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(b.Name()),
	})
	if err != nil {
		return objstore.NewError("DeleteBucket", err)
	}
	return nil
}

func (s *Store) PresignGet(ctx context.Context, b objstore.Bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", objstore.NewPresignError("PresignGet", err)
	}
	return req.URL, nil
}

func (s *Store) PresignPut(ctx context.Context, b objstore.Bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", objstore.NewPresignError("PresignPut", err)
	}
	return req.URL, nil
}

// StartMultipart opens a multipart upload session.
func (s *Store) StartMultipart(ctx context.Context, b objstore.Bucket, key string) (string, error) {
	result, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", objstore.NewError("StartMultipart", err)
	}
	if result.UploadId == nil {
		return "", objstore.NewError("StartMultipart", errors.New("no upload id returned from store"))
	}
	return *result.UploadId, nil
}

func (s *Store) PresignPart(ctx context.Context, b objstore.Bucket, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	if partNumber < 1 || partNumber > objstore.MaxPartNumber {
		return "", objstore.NewPresignError("PresignPart",
			fmt.Errorf("part number %d out of range [1, %d]", partNumber, objstore.MaxPartNumber))
	}
	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(b.Name()),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", objstore.NewPresignError("PresignPart", err)
	}
	return req.URL, nil
}

// CompleteMultipart commits the session with the parts the client uploaded.
// Parts must arrive in ascending part-number order; the caller validates.
func (s *Store) CompleteMultipart(ctx context.Context, b objstore.Bucket, key, uploadID string, parts []objstore.Part) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.Name()),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return objstore.NewError("CompleteMultipart", err)
	}
	return nil
}

// AbortMultipart cancels an in-progress session. A missing session is
// treated as success so aborts can be retried.
func (s *Store) AbortMultipart(ctx context.Context, b objstore.Bucket, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.Name()),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			return nil
		}
		return objstore.NewError("AbortMultipart", err)
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, b objstore.Bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return objstore.NewError("Upload", err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, b objstore.Bucket, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, objstore.NewError("Download", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, objstore.NewError("Download", err)
	}
	return data, nil
}

// List performs a single-level prefix+delimiter listing. Pagination is
// followed until the listing is exhausted.
func (s *Store) List(ctx context.Context, b objstore.Bucket, prefix, delimiter string) (*objstore.Listing, error) {
	listing := &objstore.Listing{}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.Name()),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, objstore.NewError("List", err)
		}
		for _, obj := range page.Contents {
			info := objstore.ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			listing.Objects = append(listing.Objects, info)
		}
		for _, cp := range page.CommonPrefixes {
			listing.CommonPrefixes = append(listing.CommonPrefixes, aws.ToString(cp.Prefix))
		}
	}
	return listing, nil
}

func (s *Store) Delete(ctx context.Context, b objstore.Bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Name()),
		Key:    aws.String(key),
	})
	if err != nil {
		return objstore.NewError("Delete", err)
	}
	return nil
}

var _ objstore.Storage = (*Store)(nil)

package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/park285/skate-duel/internal/skate"
)

// Verifier answers whether an uploaded clip exists. Upload itself is handled
// elsewhere; engines only refuse to advance on a reference that points nowhere.
type Verifier interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// PresenceVerifier accepts any non-empty reference.
type PresenceVerifier struct{}

func (PresenceVerifier) Exists(_ context.Context, ref string) (bool, error) {
	return strings.TrimSpace(ref) != "", nil
}

// Check returns an INVALID_ARGUMENT rule error when ref is missing.
func Check(ctx context.Context, v Verifier, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return skate.Errorf(skate.CodeInvalidArgument, "media reference required")
	}
	if v == nil {
		return nil
	}
	ok, err := v.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("verify media %s: %w", ref, err)
	}
	if !ok {
		return skate.Errorf(skate.CodeInvalidArgument, "media %s not found", ref)
	}
	return nil
}

// S3Config describes an S3-compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Verifier checks clips with HeadObject.
type S3Verifier struct {
	client *s3.Client
	bucket string
}

func NewS3Verifier(ctx context.Context, cfg S3Config) (*S3Verifier, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("MEDIA_BUCKET is required for s3 verification")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Verifier{client: client, bucket: cfg.Bucket}, nil
}

// Exists accepts "s3://bucket/key" or a bare key in the configured bucket.
func (v *S3Verifier) Exists(ctx context.Context, ref string) (bool, error) {
	bucket, key := splitRef(v.bucket, ref)
	if key == "" {
		return false, nil
	}
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return false, nil
	}
	return false, err
}

func splitRef(defaultBucket, ref string) (bucket, key string) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		return bucket, key
	}
	return defaultBucket, strings.TrimPrefix(ref, "/")
}

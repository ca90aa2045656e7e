// Package s3 implements storage.Provider on top of any S3-compatible API
// (Backblaze B2, Cloudflare R2, AWS S3, MinIO) using aws-sdk-go-v2.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// ObjectAPI is the subset of the S3 client the provider uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Provider is an S3-compatible storage.Provider.
type Provider struct {
	cfg     config.ProviderConfig
	role    storage.Role
	client  ObjectAPI
	urls    URLBuilder
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds an S3 client from cfg and wraps it in a Provider.
// The SDK retryer is disabled; callers decide on retries.
func New(ctx context.Context, role storage.Role, cfg config.ProviderConfig, logger zerolog.Logger, m *metrics.Metrics) (*Provider, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config for %s: %w", cfg.Name, err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// B2 and R2 reject the default flexible checksum trailers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return NewWithClient(role, cfg, client, logger, m), nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(role storage.Role, cfg config.ProviderConfig, client ObjectAPI, logger zerolog.Logger, m *metrics.Metrics) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{
		cfg:     cfg,
		role:    role,
		client:  client,
		urls:    NewURLBuilder(cfg),
		logger:  logger.With().Str("provider", cfg.Name).Str("role", string(role)).Logger(),
		metrics: m,
		now:     time.Now,
	}
}

func (p *Provider) Name() string       { return p.cfg.Name }
func (p *Provider) Role() storage.Role { return p.role }
func (p *Provider) Priority() int      { return p.cfg.Priority }
func (p *Provider) CostPerGB() float64 { return p.cfg.CostPerGB }

// PublicURL returns the public address of key.
func (p *Provider) PublicURL(key string) string {
	return p.urls(key)
}

// Upload writes an object with a category-derived Cache-Control header.
func (p *Provider) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	input := &awss3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(in.Key),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Size),
		ContentType:   aws.String(in.ContentType),
		CacheControl:  aws.String(storage.CacheControlFor(domain.GetContentCategory(in.ContentType))),
		Metadata:      in.Metadata,
	}
	if in.ContentMD5 != "" {
		input.ContentMD5 = aws.String(in.ContentMD5)
	}
	if p.cfg.PublicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	start := p.now()
	out, err := p.client.PutObject(ctx, input)
	if err != nil {
		perr := p.wrapError("upload", err)
		p.observe("upload", start, perr.Code)
		p.logger.Warn().
			Str("key", in.Key).
			Str("code", perr.Code).
			Err(err).
			Msg("upload failed")
		return nil, perr
	}
	p.observe("upload", start, "")

	p.logger.Debug().
		Str("key", in.Key).
		Int64("size", in.Size).
		Msg("object uploaded")

	return &storage.UploadOutput{
		Key:  in.Key,
		URL:  p.PublicURL(in.Key),
		ETag: aws.ToString(out.ETag),
		Size: in.Size,
	}, nil
}

// Download opens an object for reading.
// The provider timeout covers the request and reading the body. Closing the
// body releases the timer.
func (p *Provider) Download(ctx context.Context, key string) (*storage.DownloadOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)

	start := p.now()
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		perr := p.wrapError("download", err)
		p.observe("download", start, perr.Code)
		return nil, perr
	}
	p.observe("download", start, "")

	return &storage.DownloadOutput{
		Body:        &cancelOnClose{ReadCloser: out.Body, cancel: cancel},
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

// cancelOnClose ends the download context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Delete removes an object. Missing keys are not an error.
func (p *Provider) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := p.now()
	_, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		perr := p.wrapError("delete", err)
		if errors.Is(perr, storage.ErrObjectNotFound) {
			p.observe("delete", start, "")
			return nil
		}
		p.observe("delete", start, perr.Code)
		return perr
	}
	p.observe("delete", start, "")
	return nil
}

// CheckHealth runs HeadBucket and reports latency.
func (p *Provider) CheckHealth(ctx context.Context) storage.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := p.now()
	_, err := p.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(p.cfg.Bucket),
	})
	status := storage.HealthStatus{
		Healthy:      err == nil,
		ResponseTime: p.now().Sub(start),
		CheckedAt:    start.UTC(),
	}
	if err != nil {
		perr := p.wrapError("health_check", err)
		status.Error = perr.Error()
		p.observe("health_check", start, perr.Code)
		return status
	}
	p.observe("health_check", start, "")
	return status
}

func (p *Provider) observe(op string, start time.Time, code string) {
	p.metrics.ObserveProviderOp(p.cfg.Name, op, p.now().Sub(start), code)
}

// wrapError normalizes SDK failures into a storage.ProviderError.
func (p *Provider) wrapError(op string, err error) *storage.ProviderError {
	perr := &storage.ProviderError{Provider: p.cfg.Name, Op: op, Err: err}

	var apiErr smithy.APIError
	var respErr *smithyhttp.ResponseError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		perr.Code = storage.CodeTimeout
		perr.Message = fmt.Sprintf("no response within %s", p.cfg.Timeout)
	case errors.Is(err, context.Canceled):
		perr.Code = storage.CodeCanceled
	case errors.As(err, &apiErr):
		perr.Code = apiErr.ErrorCode()
		perr.Message = apiErr.ErrorMessage()
	case errors.As(err, &respErr):
		perr.Code = fmt.Sprintf("%d", respErr.HTTPStatusCode())
	default:
		perr.Code = storage.CodeUnknown
		perr.Message = err.Error()
	}
	return perr
}

// Ensure Provider implements storage.Provider.
var _ storage.Provider = (*Provider)(nil)

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// =============================================================================
// Mock S3 client
// =============================================================================

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(ctx context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.PutObjectOutput), args.Error(1)
}

func (m *mockObjectAPI) GetObject(ctx context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.GetObjectOutput), args.Error(1)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.DeleteObjectOutput), args.Error(1)
}

func (m *mockObjectAPI) HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.HeadBucketOutput), args.Error(1)
}

func b2Config() config.ProviderConfig {
	return config.ProviderConfig{
		Enabled:      true,
		Name:         "backblaze_b2",
		Kind:         KindB2,
		Endpoint:     "https://s3.us-west-004.backblazeb2.com",
		Bucket:       "amplify-media",
		DownloadHost: "f004.backblazeb2.com",
		Priority:     1,
		CostPerGB:    0.005,
		Timeout:      time.Second,
	}
}

func newTestProvider(client ObjectAPI) *Provider {
	return NewWithClient(storage.RolePrimary, b2Config(), client, zerolog.Nop(), nil)
}

// =============================================================================
// Tests
// =============================================================================

func TestProvider_Accessors(t *testing.T) {
	p := newTestProvider(&mockObjectAPI{})

	require.Equal(t, "backblaze_b2", p.Name())
	require.Equal(t, storage.RolePrimary, p.Role())
	require.Equal(t, 1, p.Priority())
	require.InDelta(t, 0.005, p.CostPerGB(), 1e-9)
	require.Equal(t, "https://f004.backblazeb2.com/file/amplify-media/users/u/images/a.png", p.PublicURL("users/u/images/a.png"))
}

func TestProvider_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("sets headers and returns public url", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *awss3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "amplify-media" &&
				aws.ToString(in.Key) == "users/u/images/a.png" &&
				aws.ToString(in.ContentType) == "image/png" &&
				aws.ToString(in.CacheControl) == "public, max-age=31536000, immutable" &&
				aws.ToInt64(in.ContentLength) == 3 &&
				aws.ToString(in.ContentMD5) == "md5" &&
				in.Metadata["user-id"] == "u"
		})).Return(&awss3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil)

		out, err := p.Upload(ctx, storage.UploadInput{
			Key:         "users/u/images/a.png",
			Body:        bytes.NewReader([]byte("png")),
			Size:        3,
			ContentType: "image/png",
			ContentMD5:  "md5",
			Metadata:    map[string]string{"user-id": "u"},
		})
		require.NoError(t, err)
		require.Equal(t, `"abc"`, out.ETag)
		require.Equal(t, "https://f004.backblazeb2.com/file/amplify-media/users/u/images/a.png", out.URL)
		client.AssertExpectations(t)
	})

	t.Run("document cache control", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *awss3.PutObjectInput) bool {
			return aws.ToString(in.CacheControl) == "public, max-age=3600" && in.ContentMD5 == nil
		})).Return(&awss3.PutObjectOutput{}, nil)

		_, err := p.Upload(ctx, storage.UploadInput{Key: "k", Body: bytes.NewReader(nil), ContentType: "application/pdf"})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("api error is normalized", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "bad key"}
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, apiErr)

		_, err := p.Upload(ctx, storage.UploadInput{Key: "k", Body: bytes.NewReader(nil), ContentType: "image/png"})
		var perr *storage.ProviderError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "backblaze_b2", perr.Provider)
		require.Equal(t, "upload", perr.Op)
		require.Equal(t, "AccessDenied", perr.Code)
		require.Equal(t, "bad key", perr.Message)
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

		_, err := p.Upload(ctx, storage.UploadInput{Key: "k", Body: bytes.NewReader(nil), ContentType: "image/png"})
		require.Equal(t, storage.CodeTimeout, storage.ErrorCode(err))
	})

	t.Run("call is bounded by the provider timeout", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("PutObject", mock.MatchedBy(func(ctx context.Context) bool {
			deadline, ok := ctx.Deadline()
			return ok && time.Until(deadline) <= time.Second
		}), mock.Anything).Return(&awss3.PutObjectOutput{}, nil)

		_, err := p.Upload(ctx, storage.UploadInput{Key: "k", Body: bytes.NewReader(nil), ContentType: "image/png"})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})
}

func TestProvider_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *awss3.GetObjectInput) bool {
			return aws.ToString(in.Key) == "k"
		})).Return(&awss3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewReader([]byte("data"))),
			ContentLength: aws.Int64(4),
			ContentType:   aws.String("text/plain"),
		}, nil)

		out, err := p.Download(ctx, "k")
		require.NoError(t, err)
		defer out.Body.Close()
		body, err := io.ReadAll(out.Body)
		require.NoError(t, err)
		require.Equal(t, "data", string(body))
		require.Equal(t, int64(4), out.Size)
	})

	t.Run("missing key matches ErrObjectNotFound", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		client.On("GetObject", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "NoSuchKey"})

		_, err := p.Download(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrObjectNotFound)
	})

	t.Run("call is bounded by the provider timeout", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)

		var callCtx context.Context
		client.On("GetObject", mock.MatchedBy(func(c context.Context) bool {
			deadline, ok := c.Deadline()
			if ok && time.Until(deadline) <= time.Second {
				callCtx = c
				return true
			}
			return false
		}), mock.Anything).Return(&awss3.GetObjectOutput{
			Body: io.NopCloser(bytes.NewReader([]byte("data"))),
		}, nil)

		out, err := p.Download(ctx, "k")
		require.NoError(t, err)
		client.AssertExpectations(t)
		require.NoError(t, callCtx.Err(), "body stays readable until closed")

		require.NoError(t, out.Body.Close())
		require.ErrorIs(t, callCtx.Err(), context.Canceled)
	})
}

func TestProvider_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{name: "not found is tolerated", err: &smithy.GenericAPIError{Code: "NotFound"}},
		{name: "other errors surface", err: errors.New("connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockObjectAPI{}
			p := newTestProvider(client)

			if tt.err != nil {
				client.On("DeleteObject", mock.Anything, mock.Anything).Return(nil, tt.err)
			} else {
				client.On("DeleteObject", mock.Anything, mock.Anything).Return(&awss3.DeleteObjectOutput{}, nil)
			}

			err := p.Delete(ctx, "k")
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, storage.CodeUnknown, storage.ErrorCode(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProvider_CheckHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(&awss3.HeadBucketOutput{}, nil)

		status := p.CheckHealth(ctx)
		require.True(t, status.Healthy)
		require.Empty(t, status.Error)
		require.False(t, status.CheckedAt.IsZero())
	})

	t.Run("unhealthy", func(t *testing.T) {
		client := &mockObjectAPI{}
		p := newTestProvider(client)
		client.On("HeadBucket", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "gone"})

		status := p.CheckHealth(ctx)
		require.False(t, status.Healthy)
		require.Contains(t, status.Error, "NoSuchBucket")
	})
}

func TestNewURLBuilder(t *testing.T) {
	key := "users/u1/images/20261014_120000_abcd1234_a.png"

	tests := []struct {
		name string
		cfg  config.ProviderConfig
		want string
	}{
		{
			name: "b2 download host",
			cfg:  config.ProviderConfig{Kind: KindB2, Bucket: "media", DownloadHost: "f004.backblazeb2.com"},
			want: "https://f004.backblazeb2.com/file/media/" + key,
		},
		{
			name: "b2 host derived from endpoint",
			cfg:  config.ProviderConfig{Kind: KindB2, Bucket: "media", Endpoint: "https://s3.eu-central-003.backblazeb2.com"},
			want: "https://f003.backblazeb2.com/file/media/" + key,
		},
		{
			name: "r2 public bucket",
			cfg:  config.ProviderConfig{Kind: KindR2, Bucket: "media", AccountID: "abc123"},
			want: "https://pub-abc123.r2.dev/" + key,
		},
		{
			name: "aws virtual host",
			cfg:  config.ProviderConfig{Kind: KindS3, Bucket: "media", Region: "eu-west-1"},
			want: "https://media.s3.eu-west-1.amazonaws.com/" + key,
		},
		{
			name: "path style",
			cfg:  config.ProviderConfig{Kind: KindPath, Bucket: "media", Endpoint: "http://localhost:9000/"},
			want: "http://localhost:9000/media/" + key,
		},
		{
			name: "custom domain wins",
			cfg:  config.ProviderConfig{Kind: KindR2, Bucket: "media", AccountID: "abc", CustomDomain: "cdn.example.com"},
			want: "https://cdn.example.com/" + key,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewURLBuilder(tt.cfg)(key))
		})
	}
}

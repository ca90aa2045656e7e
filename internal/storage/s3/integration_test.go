package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/pkg/crypto"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// integrationConfig targets a local S3-compatible server such as MinIO.
// Set AMPLIFY_TEST_S3_ENDPOINT to enable.
func integrationConfig(t *testing.T) config.ProviderConfig {
	t.Helper()

	endpoint := os.Getenv("AMPLIFY_TEST_S3_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("AMPLIFY_TEST_S3_ENDPOINT not set")
	}

	return config.ProviderConfig{
		Enabled:         true,
		Name:            "integration",
		Kind:            KindPath,
		Endpoint:        endpoint,
		Region:          getEnv("AMPLIFY_TEST_S3_REGION", "us-east-1"),
		Bucket:          "amplify-it-" + time.Now().Format("20060102150405"),
		AccessKeyID:     getEnv("AMPLIFY_TEST_S3_ACCESS_KEY_ID", "minioadmin"),
		SecretAccessKey: getEnv("AMPLIFY_TEST_S3_SECRET_ACCESS_KEY", "minioadmin"),
		UsePathStyle:    true,
		Timeout:         10 * time.Second,
	}
}

func TestIntegration_ObjectLifecycle(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	p, err := New(ctx, storage.RolePrimary, cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	raw := p.client.(*awss3.Client)
	_, err = raw.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = raw.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(cfg.Bucket)})
	})

	require.True(t, p.CheckHealth(ctx).Healthy)

	data := []byte("integration payload")
	sum := crypto.Sum(data)
	key := "users/it/documents/20261014_120000_deadbeef_note.txt"

	t.Run("Upload", func(t *testing.T) {
		out, err := p.Upload(ctx, storage.UploadInput{
			Key:         key,
			Body:        bytes.NewReader(data),
			Size:        int64(len(data)),
			ContentType: "text/plain",
			ContentMD5:  sum.ContentMD5(),
		})
		require.NoError(t, err)
		require.True(t, sum.MatchesETag(out.ETag))
		require.Equal(t, cfg.Endpoint+"/"+cfg.Bucket+"/"+key, out.URL)
	})

	t.Run("Download", func(t *testing.T) {
		out, err := p.Download(ctx, key)
		require.NoError(t, err)
		defer out.Body.Close()
		got, err := io.ReadAll(out.Body)
		require.NoError(t, err)
		require.Equal(t, data, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, p.Delete(ctx, key))
		require.NoError(t, p.Delete(ctx, key))

		_, err := p.Download(ctx, key)
		require.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}

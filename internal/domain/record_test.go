package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewUserStorageRecord(t *testing.T) {
	r := NewUserStorageRecord(uuid.New(), "users/x/images/a.png", "a.png", 10, "image/png")
	require.Equal(t, RecordActive, r.State)
	require.Equal(t, CategoryImage, r.ContentCategory)
	require.Nil(t, r.DeletedDate)
	require.False(t, r.IsDeleted())
}

func TestStateFromFlags(t *testing.T) {
	require.Equal(t, RecordActive, StateFromFlags(false))
	require.Equal(t, RecordSoftDeleted, StateFromFlags(true))
}

func TestFileMetadata_RoundTripKeepsExtra(t *testing.T) {
	m := FileMetadata{
		ChecksumSHA256:  "abc",
		PrimaryProvider: "backblaze_b2",
		Extra:           map[string]any{"campaign_stage": "draft"},
	}
	data, err := m.Marshal()
	require.NoError(t, err)

	parsed, err := ParseFileMetadata(data)
	require.NoError(t, err)
	require.Equal(t, FileMetadataVersion, parsed.SchemaVersion)
	require.Equal(t, "draft", parsed.Extra["campaign_stage"])

	empty, err := ParseFileMetadata(nil)
	require.NoError(t, err)
	require.Equal(t, FileMetadataVersion, empty.SchemaVersion)

	_, err = ParseFileMetadata([]byte("{not json"))
	require.Error(t, err)
}

func TestStructuredErrors(t *testing.T) {
	var err error = &QuotaExceededError{CurrentUsage: 900, Limit: 1000, AttemptedSize: 200, Tier: TierFree}
	require.ErrorIs(t, err, ErrQuotaExceeded)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	require.Equal(t, int64(100), qe.Available())

	require.ErrorIs(t, &FileSizeExceededError{}, ErrFileTooLarge)
	require.ErrorIs(t, &ContentTypeNotAllowedError{}, ErrContentTypeNotAllowed)

	cause := errors.New("boom")
	upload := &UploadFailedError{Provider: "b2", Code: "Timeout", Err: cause}
	require.ErrorIs(t, upload, ErrUploadFailed)
	require.ErrorIs(t, upload, cause)
}

func TestNewQuotaInfo(t *testing.T) {
	info := NewQuotaInfo(GetTierInfo(TierFree), 512*MB)
	require.Equal(t, 512*MB, info.AvailableBytes)
	require.Equal(t, 50.0, info.UsedPercent)

	over := NewQuotaInfo(GetTierInfo(TierFree), 2*GB)
	require.Equal(t, int64(0), over.AvailableBytes)
}

func TestBytesToMB(t *testing.T) {
	require.Equal(t, 5.0, BytesToMB(5*MB))
	require.Equal(t, 1.5, BytesToMB(MB+MB/2))
	require.Equal(t, 0.0, BytesToMB(0))
}

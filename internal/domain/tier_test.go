package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTierInfo(t *testing.T) {
	tests := []struct {
		name     string
		input    TierName
		wantName TierName
		wantMax  int64
	}{
		{name: "free", input: TierFree, wantName: TierFree, wantMax: 10 * MB},
		{name: "pro", input: TierPro, wantName: TierPro, wantMax: 100 * MB},
		{name: "enterprise", input: TierEnterprise, wantName: TierEnterprise, wantMax: 500 * MB},
		{name: "mixed case", input: "Pro", wantName: TierPro, wantMax: 100 * MB},
		{name: "unknown falls back to free", input: "platinum", wantName: TierFree, wantMax: 10 * MB},
		{name: "empty falls back to free", input: "", wantName: TierFree, wantMax: 10 * MB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetTierInfo(tt.input)
			require.Equal(t, tt.wantName, info.Name)
			require.Equal(t, tt.wantMax, info.MaxFileSizeBytes)
		})
	}
}

func TestTiersAreOrderedByCapability(t *testing.T) {
	all := AllTiers()
	require.Len(t, all, 3)

	for i := 1; i < len(all); i++ {
		lower, higher := all[i-1], all[i]
		require.GreaterOrEqual(t, higher.QuotaBytes, lower.QuotaBytes)
		require.GreaterOrEqual(t, higher.MaxFileSizeBytes, lower.MaxFileSizeBytes)
		for _, c := range lower.AllowedCategories {
			require.True(t, higher.Allows(c), "%s must allow %s", higher.Name, c)
		}
		if lower.MonthlyUploadLimit != nil && higher.MonthlyUploadLimit != nil {
			require.GreaterOrEqual(t, *higher.MonthlyUploadLimit, *lower.MonthlyUploadLimit)
		}
	}
	require.Nil(t, GetTierInfo(TierEnterprise).MonthlyUploadLimit)
}

func TestIsContentTypeAllowed(t *testing.T) {
	require.True(t, IsContentTypeAllowed("image/jpeg", TierFree))
	require.True(t, IsContentTypeAllowed("application/pdf", TierFree))
	require.False(t, IsContentTypeAllowed("video/mp4", TierFree))
	require.True(t, IsContentTypeAllowed("video/mp4", TierPro))
	require.True(t, IsContentTypeAllowed("application/x-unknown", TierFree))
	require.False(t, IsContentTypeAllowed("video/mp4", "bogus"))
}

func TestIsFileSizeAllowed_Boundary(t *testing.T) {
	require.True(t, IsFileSizeAllowed(10*MB, TierFree))
	require.False(t, IsFileSizeAllowed(10*MB+1, TierFree))
	require.True(t, IsFileSizeAllowed(0, TierFree))
	require.True(t, IsFileSizeAllowed(500*MB, TierEnterprise))
	require.False(t, IsFileSizeAllowed(500*MB+1, TierEnterprise))
}

func TestNextTierAndSuggestion(t *testing.T) {
	next, ok := NextTier(TierFree)
	require.True(t, ok)
	require.Equal(t, TierPro, next)

	_, ok = NextTier(TierEnterprise)
	require.False(t, ok)

	suggested, ok := SuggestTierFor(TierFree, 2*GB)
	require.True(t, ok)
	require.Equal(t, TierPro, suggested)

	suggested, ok = SuggestTierFor(TierFree, 50*GB)
	require.True(t, ok)
	require.Equal(t, TierEnterprise, suggested)

	_, ok = SuggestTierFor(TierFree, 500*GB)
	require.False(t, ok)
}

func TestAllowedContentTypes(t *testing.T) {
	free := GetTierInfo(TierFree).AllowedContentTypes()
	require.Contains(t, free, "image/png")
	require.Contains(t, free, "application/pdf")
	require.NotContains(t, free, "video/mp4")
	require.IsIncreasing(t, free)
}

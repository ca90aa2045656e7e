package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	c := Sum([]byte("hello"))

	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", c.SHA256())
	require.Equal(t, "XUFAKrxLKna5cZ2REBfFkg==", c.ContentMD5())
	require.Equal(t, `"5d41402abc4b2a76b9719d911017c592"`, c.ETag())
	require.Equal(t, int64(5), c.Size())
}

func TestMatchesETag(t *testing.T) {
	c := Sum([]byte("hello"))

	tests := []struct {
		etag string
		want bool
	}{
		{`"5d41402abc4b2a76b9719d911017c592"`, true},
		{"5D41402ABC4B2A76B9719D911017C592", true},
		{`"5d41402abc4b2a76b9719d911017c592-2"`, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.etag, func(t *testing.T) {
			require.Equal(t, tt.want, c.MatchesETag(tt.etag))
		})
	}
}

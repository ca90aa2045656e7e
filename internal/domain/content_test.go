package domain

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetContentCategory(t *testing.T) {
	tests := []struct {
		contentType string
		want        ContentCategory
	}{
		{"image/jpeg", CategoryImage},
		{"IMAGE/PNG", CategoryImage},
		{"video/mp4", CategoryVideo},
		{"video/quicktime", CategoryVideo},
		{"application/pdf", CategoryDocument},
		{"text/plain; charset=utf-8", CategoryDocument},
		{"application/octet-stream", CategoryDocument},
		{"application/x-made-up", CategoryDocument},
		{"", CategoryDocument},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			require.Equal(t, tt.want, GetContentCategory(tt.contentType))
		})
	}
}

func TestGetContentTypeFromFilename(t *testing.T) {
	require.Equal(t, "image/jpeg", GetContentTypeFromFilename("photo.JPG"))
	require.Equal(t, "video/mp4", GetContentTypeFromFilename("clip.mp4"))
	require.Equal(t, "application/pdf", GetContentTypeFromFilename("report.final.pdf"))
	require.Equal(t, DefaultContentType, GetContentTypeFromFilename("archive.xyz"))
	require.Equal(t, DefaultContentType, GetContentTypeFromFilename("noext"))
	require.Equal(t, CategoryDocument, GetContentCategory(GetContentTypeFromFilename("noext")))
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.Equal(t, "image/png", DetectContentType(png))
	require.Equal(t, "text/plain", DetectContentType([]byte("hello world")))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "report-2024_v1.pdf", want: "report-2024_v1.pdf"},
		{name: "spaces", input: "my photo.jpg", want: "my_photo.jpg"},
		{name: "traversal", input: "../../etc/passwd", want: "passwd"},
		{name: "windows path", input: `C:\Users\me\cv.docx`, want: "cv.docx"},
		{name: "unicode", input: "résumé.pdf", want: "r_sum_.pdf"},
		{name: "hidden", input: ".env", want: "env"},
		{name: "empty", input: "", want: "file"},
		{name: "only unsafe", input: "???", want: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("a", 300) + ".png"
	got := SanitizeFilename(long)
	require.Len(t, got, maxSanitizedFilenameLength)
	require.True(t, strings.HasSuffix(got, ".png"))
}

func TestGenerateFilePath(t *testing.T) {
	pattern := regexp.MustCompile(`^users/u-1/images/\d{8}_\d{6}_[0-9a-f]{8}_my_photo\.jpg$`)
	p := GenerateFilePath("u-1", "my photo.jpg", "image/jpeg")
	require.Regexp(t, pattern, p)

	require.Contains(t, GenerateFilePath("u-1", "a.mp4", "video/mp4"), "/videos/")
	require.Contains(t, GenerateFilePath("u-1", "a.bin", ""), "/documents/")
}

func TestGenerateFilePath_NoCollisionWithinSameSecond(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		p := generateFilePathAt("u-1", "same.png", "image/png", now)
		_, dup := seen[p]
		require.False(t, dup, "collision on %s", p)
		seen[p] = struct{}{}
	}
}

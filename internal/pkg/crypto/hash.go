// Package crypto provides content checksum helpers for uploads.
package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Checksums holds the digests computed for one upload payload.
type Checksums struct {
	sha256 [sha256.Size]byte
	md5    [md5.Size]byte
	size   int64
}

// Sum computes SHA-256 and MD5 of data in one call.
func Sum(data []byte) Checksums {
	return Checksums{
		sha256: sha256.Sum256(data),
		md5:    md5.Sum(data),
		size:   int64(len(data)),
	}
}

// SHA256 returns the hex-encoded SHA-256 digest stored in record metadata.
func (c Checksums) SHA256() string {
	return hex.EncodeToString(c.sha256[:])
}

// ContentMD5 returns the base64 MD5 digest for the Content-MD5 request header.
func (c Checksums) ContentMD5() string {
	return base64.StdEncoding.EncodeToString(c.md5[:])
}

// ETag returns the single-part S3 ETag (quoted hex MD5).
func (c Checksums) ETag() string {
	return fmt.Sprintf("\"%s\"", hex.EncodeToString(c.md5[:]))
}

// Size returns the payload length.
func (c Checksums) Size() int64 {
	return c.size
}

// MatchesETag reports whether a provider-returned ETag matches the payload.
// Multipart ETags ("...-N") never match and are reported as false.
func (c Checksums) MatchesETag(etag string) bool {
	return strings.EqualFold(strings.Trim(etag, `"`), hex.EncodeToString(c.md5[:]))
}

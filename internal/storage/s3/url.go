package s3

import (
	"fmt"
	"strings"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// Provider kinds select the public URL layout.
const (
	KindB2   = "b2"
	KindR2   = "r2"
	KindS3   = "s3"
	KindPath = "path"
)

// URLBuilder maps an object key to its public URL.
type URLBuilder func(key string) string

// NewURLBuilder returns the builder for cfg. A custom domain always wins.
//
//	b2:   https://{download_host}/file/{bucket}/{key}
//	r2:   https://pub-{account_id}.r2.dev/{key}
//	s3:   https://{bucket}.s3.{region}.amazonaws.com/{key}
//	path: {endpoint}/{bucket}/{key}
func NewURLBuilder(cfg config.ProviderConfig) URLBuilder {
	if cfg.CustomDomain != "" {
		base := withScheme(cfg.CustomDomain)
		return func(key string) string { return storage.JoinURL(base, key) }
	}

	var base string
	switch cfg.Kind {
	case KindB2:
		host := cfg.DownloadHost
		if host == "" {
			host = b2DownloadHost(cfg.Endpoint)
		}
		base = fmt.Sprintf("%s/file/%s", withScheme(host), cfg.Bucket)
	case KindR2:
		base = fmt.Sprintf("https://pub-%s.r2.dev", cfg.AccountID)
	case KindS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	default:
		base = fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}

	return func(key string) string { return storage.JoinURL(base, key) }
}

func withScheme(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "https://" + strings.TrimRight(host, "/")
}

// b2DownloadHost derives f{cluster}.backblazeb2.com from an S3 endpoint such as
// https://s3.us-west-004.backblazeb2.com.
func b2DownloadHost(endpoint string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	host = strings.TrimPrefix(host, "s3.")
	region, _, _ := strings.Cut(host, ".")
	if i := strings.LastIndexByte(region, '-'); i >= 0 {
		return "f" + region[i+1:] + ".backblazeb2.com"
	}
	return "f000.backblazeb2.com"
}

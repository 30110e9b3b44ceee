// Package s3uri parses the handful of URI shapes that plausibly identify an
// S3 object: the s3:// scheme, virtual-hosted-style HTTPS URLs, and
// path-style HTTPS URLs (global and regional). This is restored from
// original_source/src/s3_uris.rs, which spec.md §8 (scenario S5) tests but
// whose distilled spec.md never assigns a home.
package s3uri

import (
	"fmt"
	"regexp"
)

const (
	bucketPart = `(?P<bucket>[a-z0-9][a-z0-9\-.]{1,61}[a-z0-9])`
	keyPart    = `(?P<key>.+)`
	regionPart = `(?P<region>(us(-gov)?|af|ap|ca|cn|eu|me|sa)-[a-z]{1,16}-\d)`
)

var (
	s3SchemeRegex           = regexp.MustCompile(`^s3://` + bucketPart + `/` + keyPart + `$`)
	virtualGlobalRegex      = regexp.MustCompile(`^https://` + bucketPart + `\.s3\.amazonaws\.com/` + keyPart + `$`)
	virtualRegionalRegex    = regexp.MustCompile(`^https://` + bucketPart + `\.s3\.` + regionPart + `\.amazonaws\.com/` + keyPart + `$`)
	pathGlobalRegex         = regexp.MustCompile(`^https://s3\.amazonaws\.com/` + bucketPart + `/` + keyPart + `$`)
	pathRegionalRegex       = regexp.MustCompile(`^https://s3[-.]` + regionPart + `\.amazonaws\.com/` + bucketPart + `/` + keyPart + `$`)
)

// Location identifies an S3 object. Region is empty when the URI shape
// doesn't encode one (the caller must probe for it, per spec §4.3).
type Location struct {
	Bucket string
	Key    string
	Region string
}

// Parse recognizes the S3 URI shapes listed in the package doc and returns
// the bucket, key, and (when the URI shape encodes one) region. Anything
// else, including near-misses like "https://s3xamazonaws.com/...", is
// rejected.
func Parse(uri string) (Location, error) {
	if m := matchNamed(s3SchemeRegex, uri); m != nil {
		return Location{Bucket: m["bucket"], Key: m["key"]}, nil
	}
	if m := matchNamed(virtualRegionalRegex, uri); m != nil {
		return Location{Bucket: m["bucket"], Key: m["key"], Region: m["region"]}, nil
	}
	if m := matchNamed(virtualGlobalRegex, uri); m != nil {
		return Location{Bucket: m["bucket"], Key: m["key"]}, nil
	}
	if m := matchNamed(pathRegionalRegex, uri); m != nil {
		return Location{Bucket: m["bucket"], Key: m["key"], Region: m["region"]}, nil
	}
	if m := matchNamed(pathGlobalRegex, uri); m != nil {
		return Location{Bucket: m["bucket"], Key: m["key"]}, nil
	}
	return Location{}, fmt.Errorf("s3uri: %q is not a recognized S3 object URI", uri)
}

func matchNamed(re *regexp.Regexp, s string) map[string]string {
	groups := re.FindStringSubmatch(s)
	if groups == nil {
		return nil
	}
	out := make(map[string]string, len(groups))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = groups[i]
	}
	return out
}

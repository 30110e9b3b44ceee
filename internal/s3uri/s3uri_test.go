package s3uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5 — URI parser scenarios from spec.md §8.
func TestParseS3Scheme(t *testing.T) {
	loc, err := Parse("s3://jbarr-public/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "jbarr-public", Key: "images/abc.jpeg"}, loc)
}

func TestParsePathStyleRegional(t *testing.T) {
	loc, err := Parse("https://s3-us-east-2.amazonaws.com/jbarr-public/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "jbarr-public", Key: "images/abc.jpeg", Region: "us-east-2"}, loc)
}

func TestParsePathStyleGlobal(t *testing.T) {
	loc, err := Parse("https://s3.amazonaws.com/jbarr-public/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "jbarr-public", Key: "images/abc.jpeg"}, loc)
}

func TestParseVirtualStyleRegional(t *testing.T) {
	loc, err := Parse("https://jbarr-public.s3.us-east-2.amazonaws.com/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "jbarr-public", Key: "images/abc.jpeg", Region: "us-east-2"}, loc)
}

func TestParseVirtualStyleGlobal(t *testing.T) {
	loc, err := Parse("https://jbarr-public.s3.amazonaws.com/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "jbarr-public", Key: "images/abc.jpeg"}, loc)
}

func TestParseVirtualStyleBucketNameThatLooksLikeRegion(t *testing.T) {
	loc, err := Parse("https://ap-southeast-2.s3.us-east-2.amazonaws.com/images/abc.jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "ap-southeast-2", Key: "images/abc.jpeg", Region: "us-east-2"}, loc)
}

func TestParseRejectsNearMissHost(t *testing.T) {
	_, err := Parse("https://s3xamazonaws.com/jbarr-public/images/abc.jpeg")
	assert.Error(t, err)
}

func TestParseRejectsShortBucketName(t *testing.T) {
	_, err := Parse("https://to.s3.ap-southeast-2.amazonaws.com/images/abc.jpeg")
	assert.Error(t, err)
}

func TestParseRejectsInvalidBucketCharacters(t *testing.T) {
	_, err := Parse("https://bucket_name.s3.us-east-2.amazonaws.com/images/abc.jpeg")
	assert.Error(t, err)
}

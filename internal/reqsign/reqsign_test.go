package reqsign

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget() Target {
	return Target{
		Region: "us-east-1",
		Bucket: "broad-references",
		Key:    "hg19/v0/Homo_sapiens_assembly19.fasta",
		Host:   "s3.us-east-1.amazonaws.com",
	}
}

func testCreds() Credentials {
	return Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secretexample"}
}

func TestBuildByteRangeGETProducesWellFormedRequestLine(t *testing.T) {
	raw, err := BuildByteRangeGET(context.Background(), testCreds(), testTarget(), 0, 16384)
	require.NoError(t, err)

	s := string(raw)
	assert.True(t, strings.HasPrefix(s, "GET /hg19/v0/Homo_sapiens_assembly19.fasta HTTP/1.1\r\n"))
	assert.Contains(t, s, "Host: s3.us-east-1.amazonaws.com\r\n")
	assert.Contains(t, s, "Range: bytes=0-16383\r\n")
	assert.Contains(t, s, "Authorization: AWS4-HMAC-SHA256")
	assert.Contains(t, s, "Connection: close\r\n")
	assert.Contains(t, s, "User-Agent: s3bfg\r\n")
	assert.True(t, strings.HasSuffix(s, "\r\n\r\n"))
}

func TestBuildPartNumberGETUsesQueryParam(t *testing.T) {
	raw, err := BuildPartNumberGET(context.Background(), testCreds(), testTarget(), 375)
	require.NoError(t, err)

	s := string(raw)
	assert.True(t, strings.HasPrefix(s, "GET /hg19/v0/Homo_sapiens_assembly19.fasta?partNumber=375 HTTP/1.1\r\n"))
	assert.NotContains(t, s, "Range:")
}

func TestBuildByteRangeGETRejectsZeroLength(t *testing.T) {
	_, err := BuildByteRangeGET(context.Background(), testCreds(), testTarget(), 0, 0)
	assert.Error(t, err)
}

func TestBuildPartNumberGETRejectsZeroPart(t *testing.T) {
	_, err := BuildPartNumberGET(context.Background(), testCreds(), testTarget(), 0)
	assert.Error(t, err)
}

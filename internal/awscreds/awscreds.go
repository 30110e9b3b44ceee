// Package awscreds is the Credentials external collaborator named in spec
// §6: it discovers AWS credentials (environment, named profile, or
// instance metadata) and detects whether the process is running on an EC2
// instance, the same way the teacher's buildS3Client loads configuration,
// but returning the plain (access_key_id, secret_access_key, session_token)
// tuple spec §3 specifies rather than an SDK-specific type.
package awscreds

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"s3bfg/internal/reqsign"
)

// imdsProbeTimeout bounds how long IsEC2 will wait for the instance
// metadata service to answer before assuming it is not present.
const imdsProbeTimeout = 500 * time.Millisecond

// Load resolves credentials the same way the AWS CLI/SDK would: explicit
// access-key/secret-key flags win when both are set, otherwise a named
// profile, otherwise the default provider chain (environment, shared
// config, container/instance metadata). Region is only used to satisfy the
// SDK's config loader; it does not have to be the bucket's actual region.
func Load(ctx context.Context, profile, accessKeyID, secretAccessKey, region string) (reqsign.Credentials, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return reqsign.Credentials{}, fmt.Errorf("awscreds: loading AWS config: %w", err)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return reqsign.Credentials{}, fmt.Errorf("awscreds: retrieving credentials: %w", err)
	}

	return reqsign.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}

// IsEC2 reports whether the process is running on an EC2 instance, by
// asking the instance metadata service for its identity document. spec §6
// uses this to pick the default DNS server: 8.8.8.8:53 normally, or
// 169.254.169.253:53 (the VPC DNS resolver) on EC2.
func IsEC2(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, imdsProbeTimeout)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return false
	}

	client := imds.NewFromConfig(cfg)
	_, err = client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	return err == nil
}

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fetchS3 downloads s3://bucket/key to a temporary file using the AWS SDK
// default credential chain (env vars, shared config, instance role).
func fetchS3(ctx context.Context, spec, hostname string) (*Fetched, error) {
	if hostname == "" {
		return nil, &TransportError{Op: "s3", Source: spec, Err: ErrHostnameRequired}
	}
	bucket, key, err := parseS3Spec(spec)
	if err != nil {
		return nil, &TransportError{Op: "s3", Source: spec, Err: err}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &TransportError{Op: "s3.LoadConfig", Source: spec, Err: err}
	}
	client := s3.NewFromConfig(awsCfg)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &TransportError{Op: "s3.GetObject", Source: spec, Err: classifyS3Error(err)}
	}
	defer func() { _ = out.Body.Close() }()

	tmp, err := os.CreateTemp("", "jobkeep-fetch-*.cache")
	if err != nil {
		return nil, &TransportError{Op: "s3", Source: spec, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		cleanup()
		return nil, &TransportError{Op: "s3", Source: spec, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, &TransportError{Op: "s3", Source: spec, Err: err}
	}
	return &Fetched{Path: tmpName, Hostname: hostname, Cleanup: cleanup}, nil
}

func parseS3Spec(spec string) (bucket, key string, err error) {
	u, err := url.Parse(spec)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url: %w", err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must be s3://bucket/key, got %s", spec)
	}
	return bucket, key, nil
}

// classifyS3Error maps SDK errors onto the package sentinels so the CLI
// can print a clear one-liner instead of a smithy stack.
func classifyS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	return err
}

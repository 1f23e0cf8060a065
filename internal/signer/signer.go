// Package signer wraps the AWS SDK presign client behind the small surface
// the batch processor needs: single-shot GET/PUT URLs and the three
// multipart-upload operations (initiate round-trip, per-part PUT URLs,
// completion POST URL).
package signer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lfsgate/lfsgate/internal/auth"
)

// Options configure a per-request Signer. Region must be non-empty.
type Options struct {
	Region       string
	Endpoint     string // custom endpoint for S3-compatible backends, empty for AWS
	PathStyle    bool
	SessionToken string
	Expires      time.Duration // presigned-URL lifetime
}

// Signer issues presigned URLs and drives the multipart-initiate call for a
// single request's credentials. It holds no mutable state and is safe for
// concurrent use by the object tasks of that request.
type Signer struct {
	client  *s3.Client
	presign *s3.PresignClient
	expires time.Duration
}

// New builds a Signer from request-supplied credentials. The credentials
// are used as-is; no provider chain or role assumption is involved.
func New(creds auth.Credentials, opts Options) *Signer {
	cfg := aws.Config{
		Region: opts.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, opts.SessionToken),
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(opts.Endpoint))
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &Signer{
		client:  client,
		presign: s3.NewPresignClient(client),
		expires: opts.Expires,
	}
}

// normalizeEndpoint accepts bare hostnames for convenience; the SDK wants a
// full URL.
func normalizeEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

func (s *Signer) withExpiry(o *s3.PresignOptions) {
	o.Expires = s.expires
}

// DownloadURL returns a presigned GET URL for the object.
func (s *Signer) DownloadURL(ctx context.Context, bucket, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s.withExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download of %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadURL returns a presigned PUT URL for a single-shot upload.
func (s *Signer) UploadURL(ctx context.Context, bucket, key string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s.withExpiry)
	if err != nil {
		return "", fmt.Errorf("presign upload of %s: %w", key, err)
	}
	return req.URL, nil
}

// PartURL returns a presigned PUT URL for one part of a multipart upload,
// carrying partNumber and uploadId query parameters.
func (s *Signer) PartURL(ctx context.Context, bucket, key, uploadID string, partNumber int32) (string, error) {
	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s.withExpiry)
	if err != nil {
		return "", fmt.Errorf("presign part %d of %s: %w", partNumber, key, err)
	}
	return req.URL, nil
}

// CompleteURL returns a presigned POST URL that finishes a multipart
// upload. The client posts the XML part list itself; the gateway never sees
// the per-part ETags.
func (s *Signer) CompleteURL(ctx context.Context, bucket, key, uploadID string) (string, error) {
	req, err := s.presign.PresignCompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}, s.withExpiry)
	if err != nil {
		return "", fmt.Errorf("presign completion of %s: %w", key, err)
	}
	return req.URL, nil
}

// InitiateMultipart performs the one backend round-trip of the gateway:
// CreateMultipartUpload against the storage backend. It returns the upload
// ID the client must present on every part and on completion.
func (s *Signer) InitiateMultipart(ctx context.Context, bucket, key string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("initiate multipart upload of %s: %w", key, err)
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", fmt.Errorf("initiate multipart upload of %s: backend returned no upload ID", key)
	}
	return *out.UploadId, nil
}

// AbortMultipart releases an initiated multipart upload whose URLs could
// not be issued, so the backend does not accumulate abandoned uploads.
func (s *Signer) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload of %s: %w", key, err)
	}
	return nil
}

package batch

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// maxPartCount is S3's multipart part-number ceiling. Objects needing more
// parts are rejected per-object before any backend call; it also bounds the
// presign work one object can demand.
const maxPartCount int64 = 10000

// multipartUpload drives the multipart protocol for one oversized object:
// initiate against the backend, issue one presigned PUT URL per part, then
// issue the completion URL. The gateway never completes the upload itself:
// it cannot observe per-part ETags without buffering bytes, so the client
// posts the completion body (an XML list of {PartNumber, ETag}) to the
// verify URL once all parts are in.
func (p *Processor) multipartUpload(ctx context.Context, bucket, key string, size int64) (*MultipartAction, *ObjectError) {
	count := partCount(size)
	if count > maxPartCount {
		return nil, &ObjectError{
			Code:    http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("object needs %d parts, exceeding the backend's %d-part limit", count, maxPartCount),
		}
	}

	uploadID, err := p.Signer.InitiateMultipart(ctx, bucket, key)
	if err != nil {
		return nil, &ObjectError{
			Code:    http.StatusBadGateway,
			Message: err.Error(),
		}
	}

	parts := make([]PartAction, count)

	g, gctx := errgroup.WithContext(ctx)
	if p.PartConcurrency > 0 {
		g.SetLimit(p.PartConcurrency)
	}
	for i := int64(0); i < count; i++ {
		g.Go(func() error {
			n := int32(i + 1) // part numbers are 1-based
			href, err := p.Signer.PartURL(gctx, bucket, key, uploadID, n)
			if err != nil {
				return fmt.Errorf("part %d: %w", n, err)
			}
			parts[i] = PartAction{Href: href, PartNumber: n, ExpiresIn: p.ExpiresIn}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.abort(ctx, bucket, key, uploadID)
		return nil, &ObjectError{Code: http.StatusInternalServerError, Message: err.Error()}
	}

	verify, err := p.Signer.CompleteURL(ctx, bucket, key, uploadID)
	if err != nil {
		p.abort(ctx, bucket, key, uploadID)
		return nil, &ObjectError{Code: http.StatusInternalServerError, Message: err.Error()}
	}

	return &MultipartAction{
		Parts: parts,
		Verify: Action{
			Href:      verify,
			Header:    map[string]string{"Content-Type": "application/xml"},
			ExpiresIn: p.ExpiresIn,
		},
		UploadID:  uploadID,
		PartSize:  PartSize,
		PartCount: int32(count),
	}, nil
}

// abort releases an initiated upload whose URLs could not all be issued.
// Best effort: an upload left behind expires under the backend's lifecycle
// rules.
func (p *Processor) abort(ctx context.Context, bucket, key, uploadID string) {
	if err := p.Signer.AbortMultipart(ctx, bucket, key, uploadID); err != nil {
		p.Log.WithField("key", key).WithError(err).Debug("aborting multipart upload")
	}
}

// partCount is ceil(size / PartSize), computed without overflow for any
// non-negative size.
func partCount(size int64) int64 {
	count := size / PartSize
	if size%PartSize != 0 {
		count++
	}
	return count
}

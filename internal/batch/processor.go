package batch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lfsgate/lfsgate/internal/auth"
)

// URLSigner is the signing capability the processor drives. The production
// implementation is internal/signer; tests substitute their own.
type URLSigner interface {
	DownloadURL(ctx context.Context, bucket, key string) (string, error)
	UploadURL(ctx context.Context, bucket, key string) (string, error)
	PartURL(ctx context.Context, bucket, key, uploadID string, partNumber int32) (string, error)
	CompleteURL(ctx context.Context, bucket, key, uploadID string) (string, error)
	InitiateMultipart(ctx context.Context, bucket, key string) (string, error)
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
}

// Processor fans a batch out into bounded concurrent per-object tasks and
// collects results in request order. It is built per request and holds no
// state across requests.
type Processor struct {
	Signer URLSigner

	// Concurrency bounds the object fan-out; PartConcurrency bounds the
	// part-URL fan-out inside one multipart object.
	Concurrency     int
	PartConcurrency int

	// ExpiresIn is echoed on every action as expires_in, in seconds.
	ExpiresIn int64

	Log logrus.FieldLogger
}

// Process resolves every object of the batch. The returned slice is
// positionally aligned with objects: results[i] always carries objects[i]'s
// oid and size, as an action set or a per-object error. A failure in one
// object never disturbs its siblings.
func (p *Processor) Process(ctx context.Context, op Operation, target auth.Target, objects []RequestObject) []Result {
	results := make([]Result, len(objects))

	g := new(errgroup.Group)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, obj := range objects {
		g.Go(func() error {
			results[i] = p.processObject(ctx, op, target, obj)
			return nil
		})
	}
	// Tasks never return errors; per-object failures live in results.
	_ = g.Wait()

	return results
}

func (p *Processor) processObject(ctx context.Context, op Operation, target auth.Target, obj RequestObject) Result {
	res := Result{OID: obj.OID, Size: obj.Size}

	if err := validateObject(obj); err != nil {
		res.Err = &ObjectError{Code: http.StatusUnprocessableEntity, Message: err.Error()}
		return res
	}

	key := target.Key(obj.OID)

	if op == OpUpload && obj.Size > PartSize {
		mp, oerr := p.multipartUpload(ctx, target.Bucket, key, obj.Size)
		if oerr != nil {
			p.Log.WithFields(logrus.Fields{"oid": obj.OID, "code": oerr.Code}).
				Warn(oerr.Message)
			res.Err = oerr
			return res
		}
		res.Multipart = mp
		return res
	}

	var href string
	var err error
	switch op {
	case OpUpload:
		href, err = p.Signer.UploadURL(ctx, target.Bucket, key)
	case OpDownload:
		href, err = p.Signer.DownloadURL(ctx, target.Bucket, key)
	}
	if err != nil {
		p.Log.WithField("oid", obj.OID).WithError(err).Warn("signing failed")
		res.Err = &ObjectError{Code: http.StatusInternalServerError, Message: err.Error()}
		return res
	}

	res.Single = &SingleAction{
		Op:     op,
		Action: Action{Href: href, ExpiresIn: p.ExpiresIn},
	}
	return res
}

// validateObject rejects object IDs that could escape the key prefix or
// corrupt signed paths. Violations are per-object 422s, not batch failures.
func validateObject(obj RequestObject) error {
	if obj.OID == "" {
		return fmt.Errorf("missing oid")
	}
	if obj.Size < 0 {
		return fmt.Errorf("negative size %d", obj.Size)
	}
	if obj.OID == "." || obj.OID == ".." || strings.ContainsRune(obj.OID, '/') {
		return fmt.Errorf("oid %q is not a valid object name", obj.OID)
	}
	for _, b := range []byte(obj.OID) {
		if b < 0x20 || b == 0x7f {
			return fmt.Errorf("oid contains control characters")
		}
	}
	return nil
}

package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BatchSuffix is the fixed route suffix of the Git LFS batch endpoint.
const BatchSuffix = "/objects/batch"

var (
	// ErrNoBucket means the path named no bucket before the batch suffix.
	ErrNoBucket = errors.New("no bucket in request path")

	// ErrBadOverride means a key=value override segment had an unusable value.
	ErrBadOverride = errors.New("invalid override segment")
)

// Overrides are per-request signing overrides carried as leading key=value
// path segments. Zero values mean "not overridden".
type Overrides struct {
	Region       string
	Endpoint     string
	SessionToken string
	Expiry       int64 // presign lifetime in seconds
}

// Target identifies where a request's objects live: one bucket and an
// optional key prefix. It is derived once per request and shared read-only
// across all object tasks.
type Target struct {
	Bucket string
	Prefix string
}

// Key returns the storage key for an object ID under this target.
func (t Target) Key(oid string) string {
	if t.Prefix == "" {
		return oid
	}
	return t.Prefix + "/" + oid
}

// ParsePath extracts signing overrides and the transfer target from an
// escaped URL path of the form
//
//	/<key=value>.../<bucket>[/<prefix>...]/objects/batch
//
// Each segment is URL-decoded individually so override values may contain
// encoded slashes. Override parsing stops at the first segment without an
// "="; that segment is the bucket. Unknown override keys are ignored.
// The same path always yields the same overrides and target.
func ParsePath(escapedPath string) (Overrides, Target, error) {
	p := strings.TrimSuffix(escapedPath, BatchSuffix)
	if p == escapedPath {
		return Overrides{}, Target{}, fmt.Errorf("%w: path lacks %s suffix", ErrNoBucket, BatchSuffix)
	}

	var ov Overrides
	var segments []string
	for _, raw := range strings.Split(strings.Trim(p, "/"), "/") {
		if raw == "" {
			continue
		}
		seg, err := url.PathUnescape(raw)
		if err != nil {
			return Overrides{}, Target{}, fmt.Errorf("%w: %q", ErrBadOverride, raw)
		}
		segments = append(segments, seg)
	}

	i := 0
	for ; i < len(segments); i++ {
		key, value, found := strings.Cut(segments[i], "=")
		if !found {
			break
		}
		if err := ov.set(key, value); err != nil {
			return Overrides{}, Target{}, err
		}
	}
	if i == len(segments) {
		return Overrides{}, Target{}, ErrNoBucket
	}

	target := Target{Bucket: segments[i]}
	if rest := segments[i+1:]; len(rest) > 0 {
		target.Prefix = strings.Join(rest, "/")
	}
	return ov, target, nil
}

func (o *Overrides) set(key, value string) error {
	switch key {
	case "region":
		o.Region = value
	case "endpoint":
		o.Endpoint = value
	case "token":
		o.SessionToken = value
	case "expiry":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: expiry=%q", ErrBadOverride, value)
		}
		o.Expiry = n
	default:
		// Unknown keys are tolerated so newer clients keep working
		// against older gateways.
	}
	return nil
}

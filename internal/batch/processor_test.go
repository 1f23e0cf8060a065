package batch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfsgate/lfsgate/internal/auth"
)

// fakeSigner issues deterministic hrefs and fails on demand.
type fakeSigner struct {
	failSign        map[string]bool // keys whose signing calls fail
	failInit        map[string]bool // keys whose multipart initiate fails
	inits           atomic.Int64
	aborts          atomic.Int64
	abortedUploadID string
}

func (f *fakeSigner) href(op, bucket, key string) (string, error) {
	if f.failSign[key] {
		return "", fmt.Errorf("signing %s failed", key)
	}
	return fmt.Sprintf("https://%s.example.test/%s?op=%s", bucket, key, op), nil
}

func (f *fakeSigner) DownloadURL(_ context.Context, bucket, key string) (string, error) {
	return f.href("get", bucket, key)
}

func (f *fakeSigner) UploadURL(_ context.Context, bucket, key string) (string, error) {
	return f.href("put", bucket, key)
}

func (f *fakeSigner) PartURL(_ context.Context, bucket, key, uploadID string, partNumber int32) (string, error) {
	if f.failSign[key] {
		return "", fmt.Errorf("signing part %d of %s failed", partNumber, key)
	}
	return fmt.Sprintf("https://%s.example.test/%s?partNumber=%d&uploadId=%s", bucket, key, partNumber, uploadID), nil
}

func (f *fakeSigner) CompleteURL(_ context.Context, bucket, key, uploadID string) (string, error) {
	return f.href("complete", bucket, key)
}

func (f *fakeSigner) InitiateMultipart(_ context.Context, bucket, key string) (string, error) {
	f.inits.Add(1)
	if f.failInit[key] {
		return "", fmt.Errorf("backend refused multipart initiate for %s", key)
	}
	return "upload-" + key, nil
}

func (f *fakeSigner) AbortMultipart(_ context.Context, bucket, key, uploadID string) error {
	f.aborts.Add(1)
	f.abortedUploadID = uploadID
	return nil
}

func newTestProcessor(s URLSigner) *Processor {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Processor{
		Signer:          s,
		Concurrency:     4,
		PartConcurrency: 4,
		ExpiresIn:       3600,
		Log:             log,
	}
}

func oid(i int) string {
	return fmt.Sprintf("%064x", i)
}

func TestProcessDownloadSingleHref(t *testing.T) {
	p := newTestProcessor(&fakeSigner{})
	target := auth.Target{Bucket: "bkt"}

	results := p.Process(context.Background(), OpDownload, target, []RequestObject{
		{OID: oid(1), Size: PartSize}, // at threshold, still single-shot
		{OID: oid(2), Size: 12},
	})

	require.Len(t, results, 2)
	for i, res := range results {
		require.Nil(t, res.Err)
		require.Nil(t, res.Multipart)
		require.NotNil(t, res.Single, "object %d", i)
		assert.Equal(t, OpDownload, res.Single.Op)
		assert.Contains(t, res.Single.Action.Href, "op=get")
		assert.EqualValues(t, 3600, res.Single.Action.ExpiresIn)
	}
}

func TestProcessSmallUploadSingleHref(t *testing.T) {
	p := newTestProcessor(&fakeSigner{})

	results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"},
		[]RequestObject{{OID: oid(1), Size: PartSize}})

	require.NotNil(t, results[0].Single)
	assert.Nil(t, results[0].Multipart)
	assert.Contains(t, results[0].Single.Action.Href, "op=put")
}

func TestProcessMultipartPartCounts(t *testing.T) {
	tests := []struct {
		size  int64
		parts int32
	}{
		{PartSize + 1, 2},
		{2 * PartSize, 2},
		{2*PartSize + 1, 3},
		{10 * PartSize, 10},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("size=%d", tt.size), func(t *testing.T) {
			p := newTestProcessor(&fakeSigner{})
			results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"},
				[]RequestObject{{OID: oid(9), Size: tt.size}})

			mp := results[0].Multipart
			require.NotNil(t, mp)
			assert.Equal(t, tt.parts, mp.PartCount)
			assert.Equal(t, PartSize, mp.PartSize)
			assert.Equal(t, "upload-"+oid(9), mp.UploadID)
			require.Len(t, mp.Parts, int(tt.parts))
			for i, part := range mp.Parts {
				assert.EqualValues(t, i+1, part.PartNumber)
				assert.Contains(t, part.Href, fmt.Sprintf("partNumber=%d", i+1))
			}
			assert.NotEmpty(t, mp.Verify.Href)
			assert.Equal(t, "application/xml", mp.Verify.Header["Content-Type"])
		})
	}
}

func TestProcessMultipartUsesPrefix(t *testing.T) {
	fs := &fakeSigner{}
	p := newTestProcessor(fs)
	target := auth.Target{Bucket: "bkt", Prefix: "team/repo"}

	results := p.Process(context.Background(), OpUpload, target,
		[]RequestObject{{OID: oid(3), Size: PartSize + 1}})

	require.NotNil(t, results[0].Multipart)
	assert.Contains(t, results[0].Multipart.Parts[0].Href, "team/repo/"+oid(3))
	assert.EqualValues(t, 1, fs.inits.Load())
}

func TestProcessPreservesOrder(t *testing.T) {
	p := newTestProcessor(&fakeSigner{})
	objects := make([]RequestObject, 50)
	for i := range objects {
		objects[i] = RequestObject{OID: oid(i), Size: int64(i + 1)}
	}

	results := p.Process(context.Background(), OpDownload, auth.Target{Bucket: "bkt"}, objects)

	require.Len(t, results, len(objects))
	for i, res := range results {
		assert.Equal(t, objects[i].OID, res.OID)
		assert.Equal(t, objects[i].Size, res.Size)
	}
}

func TestProcessIsolatesFailures(t *testing.T) {
	badSign := oid(1)
	badInit := oid(2)
	p := newTestProcessor(&fakeSigner{
		failSign: map[string]bool{badSign: true},
		failInit: map[string]bool{badInit: true},
	})

	results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"}, []RequestObject{
		{OID: oid(0), Size: 100},
		{OID: badSign, Size: 100},
		{OID: badInit, Size: PartSize + 1},
		{OID: oid(3), Size: PartSize + 1},
	})

	require.Len(t, results, 4)

	assert.NotNil(t, results[0].Single)
	assert.Nil(t, results[0].Err)

	require.NotNil(t, results[1].Err)
	assert.Equal(t, http.StatusInternalServerError, results[1].Err.Code)

	require.NotNil(t, results[2].Err)
	assert.Equal(t, http.StatusBadGateway, results[2].Err.Code)

	assert.NotNil(t, results[3].Multipart)
	assert.Nil(t, results[3].Err)

	// Every requested oid appears exactly once.
	seen := map[string]int{}
	for _, res := range results {
		seen[res.OID]++
	}
	for _, want := range []string{oid(0), badSign, badInit, oid(3)} {
		assert.Equal(t, 1, seen[want])
	}
}

func TestProcessRejectsOversizedMultipart(t *testing.T) {
	fs := &fakeSigner{}
	p := newTestProcessor(fs)

	// Sizes whose part counts exceed the backend's 10000-part limit must
	// become per-object 422s without touching the backend or disturbing
	// siblings — including sizes whose part count would not even fit in
	// an int32.
	results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"}, []RequestObject{
		{OID: oid(1), Size: 10001 * PartSize},
		{OID: oid(2), Size: (math.MaxInt32 + 1) * PartSize},
		{OID: oid(3), Size: math.MaxInt64},
		{OID: oid(4), Size: PartSize + 1},
	})

	require.Len(t, results, 4)
	for i := 0; i < 3; i++ {
		require.NotNil(t, results[i].Err, "object %d", i)
		assert.Equal(t, http.StatusUnprocessableEntity, results[i].Err.Code)
		assert.Nil(t, results[i].Multipart)
	}
	require.NotNil(t, results[3].Multipart)
	assert.EqualValues(t, 2, results[3].Multipart.PartCount)

	// Only the in-bounds object reached the backend.
	assert.EqualValues(t, 1, fs.inits.Load())
}

func TestMultipartAbortsAfterSigningFailure(t *testing.T) {
	fs := &fakeSigner{failSign: map[string]bool{oid(5): true}}
	p := newTestProcessor(fs)

	results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"},
		[]RequestObject{{OID: oid(5), Size: PartSize + 1}})

	require.NotNil(t, results[0].Err)
	assert.Equal(t, http.StatusInternalServerError, results[0].Err.Code)

	// The initiated upload must not be left behind on the backend.
	assert.EqualValues(t, 1, fs.inits.Load())
	assert.EqualValues(t, 1, fs.aborts.Load())
	assert.Equal(t, "upload-"+oid(5), fs.abortedUploadID)
}

func TestProcessRejectsInvalidObjects(t *testing.T) {
	p := newTestProcessor(&fakeSigner{})

	results := p.Process(context.Background(), OpUpload, auth.Target{Bucket: "bkt"}, []RequestObject{
		{OID: "", Size: 1},
		{OID: "../escape", Size: 1},
		{OID: "a/b", Size: 1},
		{OID: oid(1), Size: -1},
	})

	for i, res := range results {
		require.NotNil(t, res.Err, "object %d", i)
		assert.Equal(t, http.StatusUnprocessableEntity, res.Err.Code)
		assert.Nil(t, res.Single)
		assert.Nil(t, res.Multipart)
	}
}

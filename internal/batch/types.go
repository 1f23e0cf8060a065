// Package batch implements the Git LFS Batch API engine: per-object
// strategy selection, multipart-upload orchestration, and assembly of the
// batch response.
package batch

// Operation is the transfer direction requested by the client.
type Operation string

const (
	OpDownload Operation = "download"
	OpUpload   Operation = "upload"
)

// Valid reports whether op is one of the two operations the Batch API
// defines.
func (op Operation) Valid() bool {
	return op == OpDownload || op == OpUpload
}

// MediaType is the Git LFS JSON media type used for requests and responses.
const MediaType = "application/vnd.git-lfs+json"

// PartSize is the fixed multipart part size: 5 MiB, the storage backend's
// multipart minimum. Uploads strictly larger than this go multipart.
const PartSize int64 = 5 * 1024 * 1024

const transferBasic = "basic"

// Request is the Git LFS batch request body.
type Request struct {
	Operation Operation       `json:"operation"`
	Transfers []string        `json:"transfers,omitempty"`
	Ref       *Ref            `json:"ref,omitempty"`
	Objects   []RequestObject `json:"objects"`
	HashAlgo  string          `json:"hash_algo,omitempty"`
}

// Ref names the git ref the batch belongs to. The gateway ignores it but
// accepts it for wire compatibility.
type Ref struct {
	Name string `json:"name"`
}

// RequestObject is one object of a batch request.
type RequestObject struct {
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

// Action is a single presigned transfer action.
type Action struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresIn int64             `json:"expires_in,omitempty"` // seconds
}

// PartAction is one presigned part-upload URL of a multipart upload.
type PartAction struct {
	Href       string `json:"href"`
	PartNumber int32  `json:"part_number"`
	ExpiresIn  int64  `json:"expires_in,omitempty"` // seconds
}

// ObjectError is a terminal per-object failure. It never aborts the batch.
type ObjectError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// SingleAction is the result variant for objects served by one presigned
// URL: GET for downloads, PUT for small uploads.
type SingleAction struct {
	Op     Operation
	Action Action
}

// MultipartAction is the result variant for uploads above PartSize: the
// full ordered part-URL list, the completion URL, and the multipart
// metadata the client needs to finish the upload on its own.
type MultipartAction struct {
	Parts     []PartAction
	Verify    Action
	UploadID  string
	PartSize  int64
	PartCount int32
}

// Result is the outcome of processing one requested object. Exactly one of
// Single, Multipart, or Err is set; serialization matches exhaustively.
type Result struct {
	OID  string
	Size int64

	Single    *SingleAction
	Multipart *MultipartAction
	Err       *ObjectError
}

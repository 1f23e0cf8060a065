package batch

import (
	"encoding/json"
	"net/http"
)

// Response is the Git LFS batch response body.
type Response struct {
	Transfer string           `json:"transfer,omitempty"`
	Objects  []ResponseObject `json:"objects"`
}

// ResponseObject echoes one requested object with either an action set or
// a per-object error, never both.
type ResponseObject struct {
	OID           string         `json:"oid"`
	Size          int64          `json:"size"`
	Authenticated bool           `json:"authenticated,omitempty"`
	Actions       *Actions       `json:"actions,omitempty"`
	Multipart     *MultipartMeta `json:"multipart,omitempty"`
	Error         *ObjectError   `json:"error,omitempty"`
}

// Actions is the action set of a successful object.
type Actions struct {
	Download *Action       `json:"download,omitempty"`
	Upload   *UploadAction `json:"upload,omitempty"`
	Verify   *Action       `json:"verify,omitempty"`
}

// UploadAction serializes either a single-shot PUT action or the ordered
// part-URL list of a multipart upload.
type UploadAction struct {
	Single *Action
	Parts  []PartAction
}

// MarshalJSON emits the single action as an object and the multipart form
// as an array of part actions.
func (u UploadAction) MarshalJSON() ([]byte, error) {
	if u.Single != nil {
		return json.Marshal(u.Single)
	}
	return json.Marshal(u.Parts)
}

// MultipartMeta carries what the client needs to finish a multipart upload
// on its own. The gateway keeps no record of the upload ID; the client owns
// it from here on.
type MultipartMeta struct {
	UploadID  string `json:"upload_id"`
	PartSize  int64  `json:"part_size"`
	PartCount int32  `json:"part_count"`
}

// Assemble builds the batch response from per-object results, preserving
// their order.
func Assemble(results []Result) Response {
	objects := make([]ResponseObject, len(results))
	for i, res := range results {
		objects[i] = res.wire()
	}
	return Response{Transfer: transferBasic, Objects: objects}
}

// wire maps the result variant onto the response shape. The switch is
// exhaustive over the three variants.
func (r Result) wire() ResponseObject {
	obj := ResponseObject{OID: r.OID, Size: r.Size}
	switch {
	case r.Err != nil:
		obj.Error = r.Err
	case r.Multipart != nil:
		obj.Authenticated = true
		verify := r.Multipart.Verify
		obj.Actions = &Actions{
			Upload: &UploadAction{Parts: r.Multipart.Parts},
			Verify: &verify,
		}
		obj.Multipart = &MultipartMeta{
			UploadID:  r.Multipart.UploadID,
			PartSize:  r.Multipart.PartSize,
			PartCount: r.Multipart.PartCount,
		}
	case r.Single != nil:
		obj.Authenticated = true
		action := r.Single.Action
		switch r.Single.Op {
		case OpDownload:
			obj.Actions = &Actions{Download: &action}
		case OpUpload:
			obj.Actions = &Actions{Upload: &UploadAction{Single: &action}}
		}
	}
	return obj
}

// Write serializes the response with the Git LFS media type. Responses
// carry presigned URLs and must never be cached.
func (resp Response) Write(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", MediaType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(resp)
}

// Package gateway wires the HTTP surface of the batch gateway: routing,
// credential and target extraction, and the hand-off to the batch engine.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/lfsgate/lfsgate/internal/auth"
	"github.com/lfsgate/lfsgate/internal/batch"
	"github.com/lfsgate/lfsgate/internal/config"
	"github.com/lfsgate/lfsgate/internal/metrics"
	"github.com/lfsgate/lfsgate/internal/signer"
)

// HomepageURL is where GET / redirects.
const HomepageURL = "https://github.com/lfsgate/lfsgate"

// Batch bodies are small JSON documents; anything near this size is abuse.
const maxBodyBytes = 4 << 20

// fallbackRegion is used when neither the request nor the environment
// names a signing region.
const fallbackRegion = "us-east-1"

// SignerFactory builds the per-request signing capability. Tests substitute
// a fake; production uses the s3 presign client.
type SignerFactory func(creds auth.Credentials, opts signer.Options) batch.URLSigner

// Handler serves the public listener: the homepage redirect and the batch
// endpoint.
type Handler struct {
	cfg       config.Config
	log       logrus.FieldLogger
	met       *metrics.Metrics
	newSigner SignerFactory
}

// New builds a Handler. met may be nil to disable instrumentation and
// newSigner may be nil to use the production signer.
func New(cfg config.Config, log logrus.FieldLogger, met *metrics.Metrics, newSigner SignerFactory) *Handler {
	if newSigner == nil {
		newSigner = func(creds auth.Credentials, opts signer.Options) batch.URLSigner {
			return signer.New(creds, opts)
		}
	}
	return &Handler{cfg: cfg, log: log, met: met, newSigner: newSigner}
}

// Router assembles the middleware stack and the catch-all dispatch. The
// batch route is suffix-based, so routing happens in dispatch rather than
// in chi patterns.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(chimw.Recoverer)
	if h.met != nil {
		r.Use(h.met.Middleware)
	}
	r.Handle("/", http.HandlerFunc(h.dispatch))
	r.Handle("/*", http.HandlerFunc(h.dispatch))
	return r
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		if r.Method == http.MethodGet {
			http.Redirect(w, r, HomepageURL, http.StatusFound)
			return
		}
		w.Header().Set("Allow", http.MethodGet)
		h.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Match on the escaped path, the same representation ParsePath
	// consumes; an encoded slash must not satisfy the route suffix.
	if !strings.HasSuffix(r.URL.EscapedPath(), auth.BatchSuffix) {
		h.writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.serveBatch(w, r)
}

func (h *Handler) serveBatch(w http.ResponseWriter, r *http.Request) {
	creds, err := auth.ParseBasicAuth(r.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, auth.ErrMissing) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Git LFS"`)
			h.writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	overrides, target, err := auth.ParsePath(r.URL.EscapedPath())
	if err != nil {
		if errors.Is(err, auth.ErrBadOverride) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	var req batch.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed batch request: "+err.Error())
		return
	}
	if !req.Operation.Valid() {
		h.writeError(w, r, http.StatusBadRequest, "operation must be upload or download")
		return
	}

	expiry := h.cfg.Expiry
	if overrides.Expiry > 0 {
		expiry = min(overrides.Expiry, h.cfg.MaxExpiry)
	}

	sg := h.newSigner(creds, signer.Options{
		Region:       firstNonEmpty(overrides.Region, h.cfg.Region, fallbackRegion),
		Endpoint:     firstNonEmpty(overrides.Endpoint, h.cfg.Endpoint),
		PathStyle:    h.cfg.PathStyle,
		SessionToken: overrides.SessionToken,
		Expires:      time.Duration(expiry) * time.Second,
	})

	proc := &batch.Processor{
		Signer:          sg,
		Concurrency:     h.cfg.Concurrency,
		PartConcurrency: h.cfg.PartConcurrency,
		ExpiresIn:       expiry,
		Log:             h.log,
	}
	results := proc.Process(r.Context(), req.Operation, target, req.Objects)
	h.countResults(req.Operation, results)

	if err := batch.Assemble(results).Write(w); err != nil {
		h.log.WithError(err).WithField("request_id", GetRequestID(r.Context())).
			Error("writing batch response")
	}
}

func (h *Handler) countResults(op batch.Operation, results []batch.Result) {
	if h.met == nil {
		return
	}
	for _, res := range results {
		switch {
		case res.Err != nil:
			h.met.CountObject(string(op), metrics.ResultError)
		case res.Multipart != nil:
			h.met.CountObject(string(op), metrics.ResultMultipart)
		default:
			h.met.CountObject(string(op), metrics.ResultOK)
		}
	}
}

// lfsError is the Git LFS error body shape.
type lfsError struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", batch.MediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(lfsError{
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	}); err != nil {
		h.log.WithError(err).Error("writing error response")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

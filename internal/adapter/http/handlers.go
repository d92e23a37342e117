package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/service"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB
	// multipartOverhead allows for part headers and boundaries around the file.
	multipartOverhead = 64 << 10
	uploadField       = "file"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Agents         *service.AgentService
	Distributions  *service.DistributionService
	Storage        Pinger
	Driver         string
	MaxUploadBytes int64
	// QueueConnected reports the NATS connection state. Nil when NATS is disabled.
	QueueConnected func() bool
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type healthStatus struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Driver  string `json:"driver"`
	NATS    string `json:"nats,omitempty"`
}

// Health reports service status. It answers 503 when storage is unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Storage: "ok", Driver: h.Driver}
	code := http.StatusOK

	if h.Storage != nil {
		if err := h.Storage.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Storage = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	if h.QueueConnected != nil {
		status.NATS = "connected"
		if !h.QueueConnected() {
			status.NATS = "disconnected"
		}
	}
	writeJSON(w, code, status)
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

// CreateAgent handles POST /api/v1/agents.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	a, err := h.Agents.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "agent already exists")
			return
		}
		writeDomainError(w, r, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ---------------------------------------------------------------------------
// Distributions
// ---------------------------------------------------------------------------

type uploadResponse struct {
	Message string `json:"message"`
	*service.UploadResult
}

// UploadDistributions handles POST /api/v1/distributions/upload. The file
// is read from the multipart field "file" and streamed into the upload
// pipeline without buffering the whole form.
func (h *Handlers) UploadDistributions(w http.ResponseWriter, r *http.Request) {
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		if err != nil {
			writeBodyError(w, err, "invalid multipart body")
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		res, err := h.Distributions.UploadAndDistribute(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeDomainError(w, r, err, "not found")
			return
		}
		writeJSON(w, http.StatusOK, uploadResponse{
			Message:      "Tasks distributed successfully",
			UploadResult: res,
		})
		return
	}
}

type batchResponse struct {
	BatchID   string `json:"batch_id"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// LatestBatch handles GET /api/v1/distributions/batch.
func (h *Handlers) LatestBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Distributions.LatestBatch(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "no distributions uploaded yet")
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{
		BatchID:   b.ID,
		Source:    b.Source,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func writeBodyError(w http.ResponseWriter, err error, msg string) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	writeError(w, http.StatusBadRequest, msg)
}

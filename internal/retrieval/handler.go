package retrieval

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studiocms/service/internal/metrics"
	"github.com/studiocms/service/internal/response"
)

const (
	successCacheControl    = "public, max-age=31536000, immutable, stale-while-revalidate=86400"
	successCDNCacheControl = "public, max-age=31536000, immutable"
	fallbackCacheControl   = "public, max-age=300"
)

// Handler exposes the gateway over HTTP.
type Handler struct {
	gw *Gateway
}

// NewHandler creates a Handler backed by gw.
func NewHandler(gw *Gateway) *Handler {
	return &Handler{gw: gw}
}

// ServeFile godoc
//
//	@Summary		Get a stored file
//	@Description	Streams a stored object through the gateway. When the object cannot be fetched a placeholder image is served with X-Fallback: true and a short cache lifetime.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			fileId	path		string	true	"File identifier"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	response.Problem
//	@Failure		503		{object}	response.Problem
//	@Router			/files/{fileId} [get]
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "fileId"))
	if id == "" {
		metrics.RetrievalsTotal.WithLabelValues("bad_request").Inc()
		response.Fail(w, http.StatusBadRequest, "File ID is required", "")
		return
	}

	switch out := h.gw.Retrieve(r.Context(), id).(type) {
	case Success:
		metrics.RetrievalsTotal.WithLabelValues("success").Inc()
		w.Header().Set("Cache-Control", successCacheControl)
		w.Header().Set("CDN-Cache-Control", successCDNCacheControl)
		if out.ContentDisposition != "" {
			w.Header().Set("Content-Disposition", out.ContentDisposition)
		}
		writeBody(w, out.ContentType, out.Data)
	case Fallback:
		metrics.RetrievalsTotal.WithLabelValues("fallback").Inc()
		w.Header().Set("Cache-Control", fallbackCacheControl)
		w.Header().Set("X-Fallback", "true")
		writeBody(w, "image/jpeg", out.Data)
	case Unavailable:
		metrics.RetrievalsTotal.WithLabelValues("unavailable").Inc()
		response.Fail(w, http.StatusServiceUnavailable, "File temporarily unavailable", out.LastError)
	}
}

func writeBody(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

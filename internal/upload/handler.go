package upload

import (
	"errors"
	"io"
	"net/http"

	"github.com/studiocms/service/internal/metrics"
	"github.com/studiocms/service/internal/response"
	"github.com/studiocms/service/internal/storage"
)

// multipartOverhead is allowed on top of the file limit for boundaries and
// the other form fields.
const multipartOverhead = 1 << 20

// FileResponse is the body of a successful upload.
type FileResponse struct {
	storage.Record
	PublicURL string `json:"publicUrl"`
}

// Handler holds HTTP handlers for uploads.
type Handler struct {
	svc          *Service
	uploadSource string
}

// NewHandler creates a Handler. uploadSource is recorded as the origin of
// uploads whose form does not name one.
func NewHandler(svc *Service, uploadSource string) *Handler {
	return &Handler{svc: svc, uploadSource: uploadSource}
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Forwards a single file to the object store and returns its identifier and proxy URL. Failures carry canRetry so the client knows whether to try again.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file			formData	file	true	"File to upload"
//	@Param			uploadedFrom	formData	string	false	"Origin of the upload"
//	@Success		201				{object}	response.Envelope{data=FileResponse}
//	@Failure		400				{object}	response.Problem
//	@Failure		401				{object}	response.Envelope
//	@Failure		413				{object}	response.Problem
//	@Failure		429				{object}	response.Problem
//	@Failure		503				{object}	response.Problem
//	@Router			/api/v1/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if limit := h.svc.MaxBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	req, err := h.readRequest(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			write(w, TooLarge{Message: "The file exceeds the upload limit."})
			return
		}
		write(w, NoFile{})
		return
	}

	write(w, h.svc.Upload(r.Context(), req))
}

func (h *Handler) readRequest(r *http.Request) (Request, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Request{}, err
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return Request{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Request{}, err
	}

	from := r.FormValue("uploadedFrom")
	if from == "" {
		from = h.uploadSource
	}
	return Request{
		Data:     data,
		FileName: hdr.Filename,
		MimeType: hdr.Header.Get("Content-Type"),
		Metadata: Metadata{UploadedFrom: from},
	}, nil
}

func write(w http.ResponseWriter, out Outcome) {
	metrics.UploadsTotal.WithLabelValues(out.Label()).Inc()

	switch o := out.(type) {
	case Created:
		response.Created(w, FileResponse{Record: o.Record, PublicURL: o.PublicURL})
	case NoFile:
		response.Fail(w, o.Status(), "No file provided", "")
	case TooLarge:
		response.Refused(w, o.Status(), "File too large", o.Message)
	case RateLimited:
		response.Warn(w, o.Status(), "Rate limit reached", o.Message)
	case Unavailable:
		response.Warn(w, o.Status(), "Upload temporarily unavailable", o.Message)
	}
}

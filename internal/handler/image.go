package handler

import (
	"errors"
	"net/http"

	"github.com/templui/pixelplan/internal/ctxkeys"
	"github.com/templui/pixelplan/internal/service"
)

type ImageHandler struct {
	imageService  *service.ImageService
	urls          urls
	maxUploadSize int64
}

func NewImageHandler(imageService *service.ImageService, appURL string, maxUploadSize int64) *ImageHandler {
	return &ImageHandler{
		imageService:  imageService,
		urls:          newURLs(appURL),
		maxUploadSize: maxUploadSize,
	}
}

// Upload accepts a multipart form with the file in the "image" field.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	// Allow room for multipart framing around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, &service.ValidationError{Field: "image", Reason: "expected multipart form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, &service.ValidationError{Field: "image", Reason: "file is required"})
		return
	}
	defer file.Close()

	view, err := h.imageService.Upload(r.Context(), userID, file, header.Size, header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.urls.image(view))
}

func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.imageService.List(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]imageResponse, 0, len(views))
	for _, v := range views {
		out = append(out, h.urls.image(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.imageService.ByID(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.urls.image(view))
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.imageService.Delete(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnsureThumbnails retries generation and reports what was created.
// Partial failures still return the created thumbnails with the error text.
func (h *ImageHandler) EnsureThumbnails(w http.ResponseWriter, r *http.Request) {
	created, err := h.imageService.EnsureThumbnails(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil && len(created) == 0 {
		writeError(w, r, err)
		return
	}

	if err != nil {
		writeEnvelope(w, http.StatusMultiStatus, envelope{
			Error:   "some thumbnails could not be generated",
			Payload: h.urls.thumbnails(created),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.urls.thumbnails(created))
}

func (h *ImageHandler) Original(w http.ResponseWriter, r *http.Request) {
	rc, image, err := h.imageService.Original(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	streamContent(w, rc, image.ContentType, "private, max-age=300")
}

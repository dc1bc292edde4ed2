package handler

import (
	"net/http"

	"github.com/templui/pixelplan/internal/ctxkeys"
	"github.com/templui/pixelplan/internal/service"
)

type ThumbnailHandler struct {
	thumbnailService *service.ThumbnailService
	urls             urls
}

func NewThumbnailHandler(thumbnailService *service.ThumbnailService, appURL string) *ThumbnailHandler {
	return &ThumbnailHandler{thumbnailService: thumbnailService, urls: newURLs(appURL)}
}

// List returns the caller's thumbnails, optionally for one image (?image=<id>).
func (h *ThumbnailHandler) List(w http.ResponseWriter, r *http.Request) {
	thumbnails, err := h.thumbnailService.ForUser(r.Context(), ctxkeys.UserID(r.Context()), r.URL.Query().Get("image"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.urls.thumbnails(thumbnails))
}

func (h *ThumbnailHandler) Content(w http.ResponseWriter, r *http.Request) {
	rc, _, err := h.thumbnailService.Content(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	streamContent(w, rc, "image/jpeg", "private, max-age=86400")
}

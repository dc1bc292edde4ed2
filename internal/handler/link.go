package handler

import (
	"net/http"

	"github.com/templui/pixelplan/internal/ctxkeys"
	"github.com/templui/pixelplan/internal/service"
)

type LinkHandler struct {
	linkService *service.LinkService
	urls        urls
}

func NewLinkHandler(linkService *service.LinkService, appURL string) *LinkHandler {
	return &LinkHandler{linkService: linkService, urls: newURLs(appURL)}
}

type createLinkRequest struct {
	Image    string `json:"image"`
	Duration int64  `json:"duration"` // seconds
}

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Image == "" {
		writeError(w, r, &service.ValidationError{Field: "image", Reason: "is required"})
		return
	}

	duration, err := service.LinkDuration(req.Duration)
	if err != nil {
		writeError(w, r, err)
		return
	}

	link, err := h.linkService.Create(r.Context(), ctxkeys.UserID(r.Context()), req.Image, duration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.urls.link(link))
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.linkService.ListLiveForUser(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, h.urls.link(l))
	}
	writeJSON(w, http.StatusOK, out)
}

// Content serves the original behind a live link to anyone holding the id.
func (h *LinkHandler) Content(w http.ResponseWriter, r *http.Request) {
	rc, image, err := h.linkService.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	streamContent(w, rc, image.ContentType, "no-store")
}

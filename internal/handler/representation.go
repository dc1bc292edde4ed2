package handler

import (
	"strings"
	"time"

	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/service"
)

type sizeResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type thumbnailResponse struct {
	ID    string       `json:"id"`
	Image string       `json:"image"`
	Size  sizeResponse `json:"size"`
	URL   string       `json:"url"`
}

type imageResponse struct {
	ID         string              `json:"id"`
	Uploader   string              `json:"uploader"`
	Name       string              `json:"name,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	Thumbnails []thumbnailResponse `json:"thumbnails"`
	Original   string              `json:"original,omitempty"`
}

type linkResponse struct {
	ID            string    `json:"id"`
	Image         string    `json:"image"`
	TimeCreated   time.Time `json:"time_created"`
	Duration      int64     `json:"duration"`
	ExpiresAt     time.Time `json:"expires_at"`
	TemporaryLink string    `json:"temporary_link"`
}

type planResponse struct {
	ID                      int64          `json:"id"`
	Name                    string         `json:"name"`
	CanViewOriginal         bool           `json:"have_access_to_original_link"`
	CanCreateExpirableLinks bool           `json:"can_create_expirable_links"`
	Sizes                   []sizeResponse `json:"sizes"`
}

// urls renders absolute content URLs below the public base URL.
type urls struct {
	base string
}

func newURLs(base string) urls {
	return urls{base: strings.TrimRight(base, "/")}
}

func (u urls) thumbnail(t *model.Thumbnail) thumbnailResponse {
	return thumbnailResponse{
		ID:    t.ID,
		Image: t.ImageID,
		Size:  sizeResponse{Width: t.Width, Height: t.Height},
		URL:   u.base + "/api/thumbnails/" + t.ID + "/content",
	}
}

func (u urls) thumbnails(ts []*model.Thumbnail) []thumbnailResponse {
	out := make([]thumbnailResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, u.thumbnail(t))
	}
	return out
}

func (u urls) image(v *service.ImageView) imageResponse {
	resp := imageResponse{
		ID:         v.Image.ID,
		Uploader:   v.Image.UploaderID,
		Name:       v.Image.OriginalName,
		CreatedAt:  v.Image.CreatedAt,
		Thumbnails: u.thumbnails(v.Thumbnails),
	}
	if v.CanViewOriginal {
		resp.Original = u.base + "/api/images/" + v.Image.ID + "/original"
	}
	return resp
}

func (u urls) link(l *model.ExpirableLink) linkResponse {
	return linkResponse{
		ID:            l.ID,
		Image:         l.ImageID,
		TimeCreated:   l.CreatedAt,
		Duration:      l.DurationSeconds,
		ExpiresAt:     l.ExpiresAt(),
		TemporaryLink: service.RenderURL(l, u.base),
	}
}

func plan(p *model.AccountPlan) planResponse {
	sizes := make([]sizeResponse, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		sizes = append(sizes, sizeResponse{Width: s.Width, Height: s.Height})
	}
	return planResponse{
		ID:                      p.ID,
		Name:                    p.Name,
		CanViewOriginal:         p.CanViewOriginal,
		CanCreateExpirableLinks: p.CanCreateExpirableLinks,
		Sizes:                   sizes,
	}
}

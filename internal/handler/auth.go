package handler

import (
	"net/http"
	"time"

	"github.com/templui/pixelplan/internal/ctxkeys"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/service"
)

type AuthHandler struct {
	authService        *service.AuthService
	entitlementService *service.EntitlementService
	planService        *service.PlanService
}

func NewAuthHandler(authService *service.AuthService, entitlementService *service.EntitlementService, planService *service.PlanService) *AuthHandler {
	return &AuthHandler{
		authService:        authService,
		entitlementService: entitlementService,
		planService:        planService,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.issueToken(w, r, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.issueToken(w, r, user, http.StatusOK)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, r *http.Request, user *model.User, status int) {
	token, expiresAt, err := h.authService.GenerateJWT(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.authService.SetJWTCookie(w, token, expiresAt)
	writeJSON(w, status, tokenResponse{User: user, Token: token, ExpiresAt: expiresAt})
}

type meResponse struct {
	User            *model.User    `json:"user"`
	Plan            string         `json:"plan"`
	PlanID          int64          `json:"plan_id"`
	Sizes           []sizeResponse `json:"sizes"`
	CanViewOriginal bool           `json:"can_view_original"`
	CanCreateLink   bool           `json:"can_create_expirable_links"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	ent, err := h.entitlementService.Resolve(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sizes := make([]sizeResponse, 0, len(ent.RequiredSizes))
	for _, s := range ent.RequiredSizes {
		sizes = append(sizes, sizeResponse{Width: s.Width, Height: s.Height})
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:            user,
		Plan:            ent.PlanName,
		PlanID:          ent.PlanID,
		Sizes:           sizes,
		CanViewOriginal: ent.CanViewOriginal,
		CanCreateLink:   ent.CanCreateLink,
	})
}

func (h *AuthHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planService.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, plan(p))
	}
	writeJSON(w, http.StatusOK, out)
}

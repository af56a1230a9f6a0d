package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/services"
)

const maxBodyBytes = 1 << 20

type UserAPI interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	SendPasswordLink(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type TokenAPI interface {
	TokenRotator
	Revoke(ctx context.Context, refreshToken string) error
}

type Handler struct {
	users   UserAPI
	tokens  TokenAPI
	cookies cookieJar
	log     logging.Logger
}

func NewHandler(users UserAPI, tokens TokenAPI, cookieSecure bool, log logging.Logger) *Handler {
	return &Handler{
		users:   users,
		tokens:  tokens,
		cookies: cookieJar{secure: cookieSecure},
		log:     log.With("module", "httpapi"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type passwordLinkRequest struct {
	Email string `json:"email"`
}

type newPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type principalResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", common.ErrorValidation, err)
	}
	return nil
}

// Login exchanges credentials for an access token and a refresh cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure(r, "login failed", err)
		writeError(w, err)
		return
	}

	h.cookies.set(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken})
}

// Refresh rotates the refresh cookie and returns a new access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.tokens.ValidateAndRotate(r.Context(), refreshTokenFrom(r))
	if err != nil {
		h.logFailure(r, "refresh failed", err)
		writeError(w, fmt.Errorf("%w: %w", common.ErrRefreshFailed, err))
		return
	}

	h.cookies.set(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken})
}

// Logout revokes the refresh cookie and expires it. Repeating it is harmless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), refreshTokenFrom(r)); err != nil {
		h.logFailure(r, "revoke failed", err)
		writeError(w, err)
		return
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out."})
}

// SendPasswordLink always answers 202 so callers cannot tell which accounts exist.
func (h *Handler) SendPasswordLink(w http.ResponseWriter, r *http.Request) {
	var req passwordLinkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.SendPasswordLink(r.Context(), req.Email); err != nil {
		h.logFailure(r, "password link failed", err)
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "If the account exists, a link has been sent."})
}

func (h *Handler) NewPassword(w http.ResponseWriter, r *http.Request) {
	var req newPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.logFailure(r, "password reset failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated."})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrMissingCredentials)
		return
	}
	writeJSON(w, http.StatusOK, principalResponse{ID: u.ID, Email: u.Email, Roles: u.Roles()})
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), msg, "error", err)
		return
	}
	h.log.Debug(r.Context(), msg, "error", err)
}

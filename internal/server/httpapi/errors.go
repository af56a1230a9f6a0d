package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cateringhub/backoffice/internal/common"
)

// Messages returned in 401 bodies.
const (
	msgMissingCredentials = "Authentication required."
	msgInvalidToken       = "Invalid token"
	msgRefreshFailed      = "Refresh token expired or invalid. Please log in again."
	msgUserDisabled       = "User is disabled."
	msgBadCredentials     = "Invalid credentials."
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// statusFor maps an error to the HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrMissingCredentials):
		return http.StatusUnauthorized, msgMissingCredentials
	case errors.Is(err, common.ErrUserDisabled):
		return http.StatusUnauthorized, msgUserDisabled
	case errors.Is(err, common.ErrRefreshFailed),
		errors.Is(err, common.ErrRefreshTokenNotFound),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrRotationFailed):
		return http.StatusUnauthorized, msgRefreshFailed
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, msgInvalidToken
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, msgInvalidToken
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "Already exists."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeJSON(w, status, errorResponse{Error: msg})
}

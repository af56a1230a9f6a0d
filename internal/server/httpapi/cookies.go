package httpapi

import (
	"net/http"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/services"
)

// AccessTokenHeader carries a replacement access token after rotation.
const AccessTokenHeader = common.AccessTokenHeaderName

const cookiePath = "/api"

type cookieJar struct {
	secure bool
}

func (c cookieJar) set(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     cookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    "",
		Path:     cookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshTokenFrom(r *http.Request) string {
	c, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

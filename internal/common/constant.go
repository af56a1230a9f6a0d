// Package common contains shared constants and sentinel errors used across
// back-office components.
package common

// RefreshTokenCookieName is the HttpOnly cookie that carries the opaque
// refresh token between the browser and the API.
const RefreshTokenCookieName = "REFRESH_TOKEN"

// AccessTokenHeaderName is the response header used to hand a rotated access
// token back to the client after a transparent refresh.
const AccessTokenHeaderName = "X-Access-Token"

// PurposePasswordReset marks JWTs that may only be used to set a new password.
const PurposePasswordReset = "password_reset"

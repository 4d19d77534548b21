package adminhttp

import (
	"net/http"
	"time"

	"github.com/crestline-motors/adminauth"
)

func (h *Handler) setSessionCookies(w http.ResponseWriter, tokens *adminauth.TokenPair) {
	cookies := h.engine.Cookies()

	http.SetCookie(w, sessionCookie(cookies, cookies.AccessName, tokens.AccessToken, h.opts.AccessMaxAge))
	http.SetCookie(w, sessionCookie(cookies, cookies.RefreshName, tokens.RefreshToken, h.opts.RefreshMaxAge))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	cookies := h.engine.Cookies()

	for _, name := range []string{cookies.AccessName, cookies.RefreshName} {
		cleared := sessionCookie(cookies, name, "", 0)
		cleared.MaxAge = -1
		cleared.Expires = time.Unix(0, 0)
		http.SetCookie(w, cleared)
	}
}

func sessionCookie(cfg adminauth.CookieConfig, name, value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	return cookie
}

func cookieValue(r *http.Request, name string) string {
	if cookie, err := r.Cookie(name); err == nil {
		return cookie.Value
	}
	return ""
}

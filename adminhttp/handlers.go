package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/crestline-motors/adminauth"
	"github.com/crestline-motors/adminauth/middleware"
)

// Options tunes the HTTP layer.
type Options struct {
	// AccessMaxAge and RefreshMaxAge set the cookie lifetimes. Defaults
	// mirror the token TTL defaults: 15 minutes and 7 days.
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
	// SignedCSRF issues HMAC-signed CSRF tokens from the csrf endpoint.
	SignedCSRF bool
}

// Handler serves the login-flow endpoints.
type Handler struct {
	engine *adminauth.Engine
	opts   Options
}

// NewHandler wraps the engine.
func NewHandler(engine *adminauth.Engine, opts Options) *Handler {
	if opts.AccessMaxAge <= 0 {
		opts.AccessMaxAge = 15 * time.Minute
	}
	if opts.RefreshMaxAge <= 0 {
		opts.RefreshMaxAge = 7 * 24 * time.Hour
	}
	return &Handler{engine: engine, opts: opts}
}

// Register mounts the endpoints on mux under /admin/api/.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/api/login", h.handleLogin)
	mux.HandleFunc("POST /admin/api/login/verify", h.handleVerify)
	mux.HandleFunc("POST /admin/api/login/resend", h.handleResend)
	mux.HandleFunc("POST /admin/api/logout", h.handleLogout)
	mux.HandleFunc("POST /admin/api/refresh", h.handleRefresh)
	mux.HandleFunc("GET /admin/api/csrf", h.handleCSRFToken)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.Login(requestContext(r), req.Email, req.Password)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	switch res.State {
	case adminauth.StateAwaitingVerification:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":                   true,
			"requiresEmailVerification": true,
		})
	case adminauth.StateLockedOut:
		writeLocked(w, res.RetryAfter)
	default:
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.VerifyCode(requestContext(r), req.Email, req.Code)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	switch res.State {
	case adminauth.StateSessionIssued:
		h.setSessionCookies(w, res.Tokens)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case adminauth.StateLockedOut:
		writeLocked(w, res.RetryAfter)
	default:
		// Wrong, expired, and absent codes share one response.
		writeJSONError(w, http.StatusUnauthorized, "invalid verification code")
	}
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.ResendCode(requestContext(r), req.Email); err != nil {
		writeFlowError(w, err)
		return
	}

	// Uniform response whether or not anything was sent.
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookies := h.engine.Cookies()
	h.engine.Logout(requestContext(r),
		cookieValue(r, cookies.AccessName),
		cookieValue(r, cookies.RefreshName))

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookies := h.engine.Cookies()

	pair, err := h.engine.Refresh(requestContext(r), cookieValue(r, cookies.RefreshName))
	if err != nil {
		if errors.Is(err, adminauth.ErrDependencyUnavailable) {
			writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		h.clearSessionCookies(w)
		writeJSONError(w, http.StatusUnauthorized, "session expired")
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	var value string
	var err error
	if h.opts.SignedCSRF {
		signed, signErr := h.engine.CSRFTokenSigned()
		value, err = signed.Signed, signErr
	} else {
		value, err = h.engine.CSRFToken()
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"csrfToken": value})
}

func requestContext(r *http.Request) context.Context {
	return adminauth.WithClientIP(r.Context(), middleware.ClientIP(r))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeFlowError(w http.ResponseWriter, err error) {
	var rle *adminauth.RateLimitError
	if errors.As(err, &rle) {
		if rle.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprint(int(rle.RetryAfter.Seconds())))
		}
		writeJSONError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	if errors.Is(err, adminauth.ErrDependencyUnavailable) {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
}

func writeLocked(w http.ResponseWriter, retryAfter time.Duration) {
	minutes := int(math.Ceil(retryAfter.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	w.Header().Set("Retry-After", fmt.Sprint(int(retryAfter.Seconds())))
	writeJSONError(w, http.StatusLocked,
		fmt.Sprintf("account temporarily locked, try again in ~%d minutes", minutes))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package httpapi exposes magic link issuance and redemption over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-magiclink/command"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-magiclink/service"
	"github.com/gorilla/mux"
)

const (
	DefaultRequestPath = "/magic-link"
	DefaultVerifyPath  = "/auth/verify"
	DefaultLoginPath   = "/login"
	DefaultGuard       = "web"

	// ErrorInvalidLink is appended to the login redirect for rejected links.
	ErrorInvalidLink = "invalid_link"
	// ErrorVerificationFailed is appended when redemption errored.
	ErrorVerificationFailed = "verification_failed"

	sentMessage = "If the address is valid, a login link is on its way."
	maxBodySize = 1 << 16
)

const (
	textCodeBadRequest      = "BAD_REQUEST"
	textCodeUnknownGuard    = "UNKNOWN_GUARD"
	textCodeTooManyAttempts = "TOO_MANY_ATTEMPTS"
	textCodeDeliveryFailed  = "DELIVERY_FAILED"
	textCodeDisabled        = "MAGIC_LINK_DISABLED"
	textCodeInternal        = "INTERNAL"
)

// MagicLinks is the part of service.Service the handlers call.
type MagicLinks interface {
	SendMagicLink(ctx context.Context, req service.SendRequest) (command.IssueMagicLinkResult, error)
	VerifyAndLogin(ctx context.Context, token, guard string) (command.VerifyMagicLinkResult, error)
}

// Config wires the handlers.
type Config struct {
	Service  MagicLinks
	Sessions *scs.SessionManager
	// RequestPath, VerifyPath and LoginPath default to the package constants.
	RequestPath  string
	VerifyPath   string
	LoginPath    string
	DefaultGuard string
	Logger       types.Logger
}

// Handler serves the magic link endpoints.
type Handler struct {
	service      MagicLinks
	sessions     *scs.SessionManager
	requestPath  string
	verifyPath   string
	loginPath    string
	defaultGuard string
	logger       types.Logger
}

// NewHandler validates cfg and applies defaults.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("httpapi: service required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("httpapi: session manager required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Handler{
		service:      cfg.Service,
		sessions:     cfg.Sessions,
		requestPath:  valueOr(cfg.RequestPath, DefaultRequestPath),
		verifyPath:   valueOr(cfg.VerifyPath, DefaultVerifyPath),
		loginPath:    valueOr(cfg.LoginPath, DefaultLoginPath),
		defaultGuard: valueOr(cfg.DefaultGuard, DefaultGuard),
		logger:       logger,
	}, nil
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc(h.requestPath, h.send).Methods(http.MethodPost)
	r.HandleFunc(h.verifyPath, h.verify).Methods(http.MethodGet)
	r.HandleFunc(h.verifyPath+"/{guard}", h.verify).Methods(http.MethodGet)
}

// GuardPath is the verification path carrying guard.
func (h *Handler) GuardPath(guard string) string {
	return GuardPath(h.verifyPath, guard)
}

// GuardPath joins verifyPath and guard. Pass it to the securelink provider so
// issued links route back to the guard they were issued for.
func GuardPath(verifyPath, guard string) string {
	return valueOr(verifyPath, DefaultVerifyPath) + "/" + url.PathEscape(guard)
}

// Router returns a router with the routes mounted behind the session
// middleware.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.Register(r)
	return h.sessions.LoadAndSave(r)
}

type sendRequest struct {
	Identifier string         `json:"identifier"`
	Guard      string         `json:"guard"`
	Channels   []string       `json:"channels,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(textCodeBadRequest), http.StatusBadRequest)
		return
	}
	guard := strings.TrimSpace(req.Guard)
	if guard == "" {
		guard = h.defaultGuard
	}
	channels := make([]types.Channel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, types.Channel(c))
	}

	_, err := h.service.SendMagicLink(r.Context(), service.SendRequest{
		Identifier: req.Identifier,
		Guard:      guard,
		Attributes: req.Attributes,
		Channels:   channels,
	})
	if err != nil {
		if limit, ok := types.AsRateLimitError(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(limit.RetryAfterSeconds()))
		}
		rich, status := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("httpapi: magic link request failed", err, "guard", guard)
		}
		h.writeError(w, rich, status)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: sentMessage})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guard := strings.TrimSpace(mux.Vars(r)["guard"])
	if guard == "" {
		guard = strings.TrimSpace(q.Get("guard"))
	}
	if guard == "" {
		guard = h.defaultGuard
	}
	result, err := h.service.VerifyAndLogin(r.Context(), q.Get("token"), guard)
	switch {
	case err != nil && isBadRequest(err):
		h.redirectToLogin(w, r, ErrorInvalidLink)
	case err != nil:
		h.logger.Error("httpapi: verification failed", err, "guard", guard)
		h.redirectToLogin(w, r, ErrorVerificationFailed)
	case !result.Valid:
		h.redirectToLogin(w, r, ErrorInvalidLink)
	default:
		http.Redirect(w, r, result.RedirectTo, http.StatusFound)
	}
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	target := h.loginPath + "?" + url.Values{"error": {code}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// classify maps service errors to a client safe error and status. Delivery
// failures never say which channel failed.
func classify(err error) (*goerrors.Error, int) {
	if limit, ok := types.AsRateLimitError(err); ok {
		return goerrors.Wrap(limit, goerrors.CategoryValidation, "too many login link requests, try again later").
			WithTextCode(textCodeTooManyAttempts), http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, types.ErrUnknownGuard):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "unknown guard").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(textCodeUnknownGuard), http.StatusBadRequest
	case isBadRequest(err):
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(textCodeBadRequest), http.StatusBadRequest
	case errors.Is(err, types.ErrDeliveryFailed), errors.Is(err, types.ErrNoDeliveryChannel):
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to send a login link right now, try again later").
			WithTextCode(textCodeDeliveryFailed), http.StatusServiceUnavailable
	case errors.Is(err, command.ErrMagicLinkDisabled):
		return goerrors.Wrap(err, goerrors.CategoryInternal, "login links are currently unavailable").
			WithTextCode(textCodeDisabled), http.StatusServiceUnavailable
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "internal error").
		WithCode(goerrors.CodeInternal).
		WithTextCode(textCodeInternal), http.StatusInternalServerError
}

func isBadRequest(err error) bool {
	return errors.Is(err, types.ErrIdentifierRequired) ||
		errors.Is(err, types.ErrGuardRequired) ||
		errors.Is(err, types.ErrTokenRequired) ||
		errors.Is(err, types.ErrUnknownGuard)
}

func (h *Handler) writeError(w http.ResponseWriter, rich *goerrors.Error, status int) {
	writeJSON(w, status, errorResponse{Error: rich.Message, Code: rich.TextCode})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func valueOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

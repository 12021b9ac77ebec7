package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/goliatone/go-magiclink/command"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-magiclink/service"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	sendErr      error
	sent         []service.SendRequest
	verifyResult command.VerifyMagicLinkResult
	verifyErr    error
	verified     []string
}

func (f *fakeService) SendMagicLink(_ context.Context, req service.SendRequest) (command.IssueMagicLinkResult, error) {
	f.sent = append(f.sent, req)
	return command.IssueMagicLinkResult{}, f.sendErr
}

func (f *fakeService) VerifyAndLogin(_ context.Context, token, guard string) (command.VerifyMagicLinkResult, error) {
	f.verified = append(f.verified, token+"|"+guard)
	return f.verifyResult, f.verifyErr
}

func newTestHandler(t *testing.T, svc *fakeService) http.Handler {
	t.Helper()
	h, err := NewHandler(Config{Service: svc, Sessions: scs.New()})
	require.NoError(t, err)
	return h.Router()
}

func postJSON(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultRequestPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	_, err := NewHandler(Config{Sessions: scs.New()})
	require.Error(t, err)
	_, err = NewHandler(Config{Service: &fakeService{}})
	require.Error(t, err)
}

func TestSend_Accepted(t *testing.T) {
	svc := &fakeService{}
	rec := postJSON(t, newTestHandler(t, svc), `{"identifier":"ana@example.com","guard":"web","channels":["mail"],"attributes":{"name":"Ana"}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, sentMessage, body.Message)

	require.Len(t, svc.sent, 1)
	require.Equal(t, "ana@example.com", svc.sent[0].Identifier)
	require.Equal(t, []types.Channel{types.ChannelMail}, svc.sent[0].Channels)
	require.Equal(t, "Ana", svc.sent[0].Attributes["name"])
}

func TestSend_DefaultsGuard(t *testing.T) {
	svc := &fakeService{}
	rec := postJSON(t, newTestHandler(t, svc), `{"identifier":"+15550001"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, DefaultGuard, svc.sent[0].Guard)
}

func TestSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown guard", types.ErrUnknownGuard, http.StatusBadRequest, textCodeUnknownGuard},
		{"missing identifier", types.ErrIdentifierRequired, http.StatusBadRequest, textCodeBadRequest},
		{"delivery", &types.DeliveryError{Channel: types.ChannelSMS, Err: errors.New("gateway down")}, http.StatusServiceUnavailable, textCodeDeliveryFailed},
		{"disabled", command.ErrMagicLinkDisabled, http.StatusServiceUnavailable, textCodeDisabled},
		{"internal", errors.New("boom"), http.StatusInternalServerError, textCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, newTestHandler(t, &fakeService{sendErr: tc.err}), `{"identifier":"ana@example.com","guard":"web"}`)
			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			require.Equal(t, tc.code, body.Code)
			require.NotContains(t, body.Error, "gateway down")
			require.NotContains(t, body.Error, "sms")
		})
	}
}

func TestSend_RateLimitedSetsRetryAfter(t *testing.T) {
	svc := &fakeService{sendErr: &types.RateLimitError{RetryAfter: 90*time.Second + time.Millisecond}}
	rec := postJSON(t, newTestHandler(t, svc), `{"identifier":"ana@example.com","guard":"web"}`)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "91", rec.Header().Get("Retry-After"))
	require.Equal(t, textCodeTooManyAttempts, decodeError(t, rec).Code)
}

func TestSend_MalformedBody(t *testing.T) {
	svc := &fakeService{}
	rec := postJSON(t, newTestHandler(t, svc), `{"identifier":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.sent)
}

func TestSend_WrongMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, DefaultRequestPath, nil)
	rec := httptest.NewRecorder()
	newTestHandler(t, &fakeService{}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func verifyRequest(t *testing.T, handler http.Handler, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, DefaultVerifyPath+"?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVerify_RedirectsOnSuccess(t *testing.T) {
	svc := &fakeService{verifyResult: command.VerifyMagicLinkResult{Valid: true, RedirectTo: "/dashboard"}}
	rec := verifyRequest(t, newTestHandler(t, svc), url.Values{"token": {"signed"}, "guard": {"web"}})

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))
	require.Equal(t, []string{"signed|web"}, svc.verified)
}

func TestVerify_InvalidLinkRedirectsToLogin(t *testing.T) {
	svc := &fakeService{verifyResult: command.VerifyMagicLinkResult{Reason: command.ReasonExpired}}
	rec := verifyRequest(t, newTestHandler(t, svc), url.Values{"token": {"signed"}})

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?error=invalid_link", rec.Header().Get("Location"))
	require.Equal(t, []string{"signed|" + DefaultGuard}, svc.verified)
}

func TestVerify_MissingTokenRedirectsToLogin(t *testing.T) {
	svc := &fakeService{verifyErr: types.ErrTokenRequired}
	rec := verifyRequest(t, newTestHandler(t, svc), url.Values{})
	require.Equal(t, "/login?error=invalid_link", rec.Header().Get("Location"))
}

func TestVerify_ErrorRedirectsWithGenericCode(t *testing.T) {
	svc := &fakeService{verifyErr: errors.New("tx failed")}
	rec := verifyRequest(t, newTestHandler(t, svc), url.Values{"token": {"signed"}})
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?error=verification_failed", rec.Header().Get("Location"))
}

func TestClassify_UsesRichErrors(t *testing.T) {
	rich, status := classify(types.ErrGuardRequired)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, textCodeBadRequest, rich.TextCode)
}

func TestVerify_GuardFromPath(t *testing.T) {
	svc := &fakeService{verifyResult: command.VerifyMagicLinkResult{Valid: true, RedirectTo: "/admin"}}
	h, err := NewHandler(Config{Service: svc, Sessions: scs.New()})
	require.NoError(t, err)
	require.Equal(t, "/auth/verify/admin", h.GuardPath("admin"))

	req := httptest.NewRequest(http.MethodGet, h.GuardPath("admin")+"?token=signed", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/admin", rec.Header().Get("Location"))
	require.Equal(t, []string{"signed|admin"}, svc.verified)
}

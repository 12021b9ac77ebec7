package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_LoginPersistsUserID(t *testing.T) {
	manager := scs.New()
	auth, err := NewAuthenticator(manager)
	require.NoError(t, err)

	user := types.User{ID: uuid.New()}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, auth.Login(r.Context(), "web", user))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.UserID(r.Context(), "web")))
	})
	handler := manager.LoadAndSave(mux)

	login := httptest.NewRecorder()
	handler.ServeHTTP(login, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	me := httptest.NewRecorder()
	handler.ServeHTTP(me, req)
	require.Equal(t, user.ID.String(), me.Body.String())
}

func TestAuthenticator_WithoutSessionContext(t *testing.T) {
	auth, err := NewAuthenticator(scs.New())
	require.NoError(t, err)

	err = auth.Login(context.Background(), "web", types.User{ID: uuid.New()})
	require.ErrorIs(t, err, ErrNoSession)
	require.Empty(t, auth.UserID(context.Background(), "web"))
	require.Equal(t, "admin_user_id", auth.Key("admin"))
}

func TestNewAuthenticator_RequiresManager(t *testing.T) {
	_, err := NewAuthenticator(nil)
	require.Error(t, err)
}

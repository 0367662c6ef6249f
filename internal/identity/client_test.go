package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

func testLogger() *utils.Logger {
	return utils.NewLogger("error")
}

func TestAuthenticate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/authenticate", r.URL.Path)

		var creds models.AuthCredentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "good-token", creds.Token)

		json.NewEncoder(w).Encode(models.User{ID: 7, Username: "ada", Email: "ada@example.com"})
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, testLogger())
	user, err := r.Authenticate(context.Background(), models.AuthCredentials{ID: 7, Token: "good-token"})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), user.ID)
	assert.Equal(t, "ada", user.Username)
}

func TestAuthenticate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, testLogger())
	_, err := r.Authenticate(context.Background(), models.AuthCredentials{Token: "bad"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_EmptyTokenSkipsUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, testLogger())
	_, err := r.Authenticate(context.Background(), models.AuthCredentials{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, called)
}

func TestAuthenticate_Unreachable(t *testing.T) {
	r := NewResolver("http://127.0.0.1:1", testLogger())
	_, err := r.Authenticate(context.Background(), models.AuthCredentials{Token: "t"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

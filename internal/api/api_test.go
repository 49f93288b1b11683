package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gennadis/apiclient/internal/client"
	"github.com/gennadis/apiclient/internal/config"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

// fakeBackend serves the subset of the auth/users API used by the tests.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	bearer := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access-1" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": "Faild to authorize"}`))
				return
			}
			next(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /v1/signin", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in SignInRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "Invalid email or password"}`))
			return
		}
		writeJSON(w, AuthResponse{
			Token: Token{AccessToken: "access-1", RefreshToken: "refresh-1"},
			User:  User{ID: 1, Email: in.Email},
		})
	})
	mux.HandleFunc("POST /v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var in SignUpRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, AuthResponse{
			Token: Token{AccessToken: "access-1", RefreshToken: "refresh-1"},
			User:  User{ID: 2, Email: in.Email, FirstName: in.FirstName},
		})
	})
	mux.HandleFunc("GET /v1/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "Invalid refresh token"}`))
			return
		}
		writeJSON(w, map[string]string{"access_token": "access-2"})
	})
	mux.HandleFunc("GET /v1/users", bearer(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []User{{ID: 1, Email: "a@example.com"}, {ID: 2, Email: "b@example.com"}})
	}))
	mux.HandleFunc("GET /v1/user/{id}", bearer(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, User{ID: 7, Email: "g@example.com"})
	}))
	mux.HandleFunc("POST /v1/user/update", bearer(func(w http.ResponseWriter, r *http.Request) {
		var in UserUpdateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, User{ID: in.ID, FirstName: in.FirstName, LastName: in.LastName})
	}))
	mux.HandleFunc("GET /secret", bearer(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "Top Secret data only authorized users can access this info")
	}))
	mux.HandleFunc("GET /not-secret", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "Not secret data")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAPI(t *testing.T, baseURL string) *Client {
	t.Helper()
	hc, err := client.New(config.NewConfig(func(k string) (string, bool) {
		if k == config.EnvAPIEndpoint {
			return baseURL, true
		}
		return "", false
	}))
	require.NoError(t, err)
	return New(hc)
}

func TestSignIn(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL)

	res, err := c.SignIn(context.Background(), SignInRequest{Email: "a@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", res.Token.AccessToken)
	assert.Equal(t, "refresh-1", res.Token.RefreshToken)
	assert.Equal(t, "a@example.com", res.User.Email)
}

func TestSignIn_WrongPassword(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL)

	_, err := c.SignIn(context.Background(), SignInRequest{Email: "a@example.com", Password: "nope"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestSignUp(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL)

	res, err := c.SignUp(context.Background(), SignUpRequest{Email: "n@example.com", Password: "pw", FirstName: "N"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.User.ID)
	assert.Equal(t, "N", res.User.FirstName)
}

func TestRefreshToken(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL)

	tok, err := c.RefreshToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)

	_, err = c.RefreshToken(context.Background(), "stale")
	assert.True(t, IsUnauthorized(err))
}

func TestBearerEndpoints(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL).WithTokenSource(staticToken("access-1"))
	ctx := context.Background()

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	u, err := c.User(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "g@example.com", u.Email)

	updated, err := c.UpdateUser(ctx, UserUpdateRequest{ID: 7, FirstName: "G"})
	require.NoError(t, err)
	assert.Equal(t, "G", updated.FirstName)

	secret, err := c.Secret(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, "Top Secret"))
}

func TestBearerEndpoints_WrongToken(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL).WithTokenSource(staticToken("bogus"))

	_, err := c.Users(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Faild to authorize", apiErr.Message)
}

func TestBearerEndpoints_NoToken(t *testing.T) {
	srv := fakeBackend(t)
	base := newAPI(t, srv.URL)

	_, err := base.Users(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = base.WithTokenSource(staticToken("")).Secret(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNotSecret(t *testing.T) {
	srv := fakeBackend(t)
	c := newAPI(t, srv.URL)

	got, err := c.NotSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Not secret data", got)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "nope", errorMessage([]byte(`{"detail":"nope"}`)))
	assert.Equal(t, `[{"msg":"field required"}]`, errorMessage([]byte(`{"detail":[{"msg":"field required"}]}`)))
	assert.Equal(t, "Internal Server Error", errorMessage([]byte("Internal Server Error\n")))
}

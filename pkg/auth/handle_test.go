package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vortexhq/vortex-auth/pkg/notification"
	"github.com/vortexhq/vortex-auth/pkg/password"
	"github.com/vortexhq/vortex-auth/pkg/ratelimit"
	"github.com/vortexhq/vortex-auth/pkg/tokengen"
)

func newTestServer(t *testing.T) (*httptest.Server, *InMemoryRepository) {
	t.Helper()

	repo := NewInMemoryRepository()
	svc := NewService(
		repo,
		password.NewBcryptHasher(bcrypt.MinCost),
		password.DefaultPolicy(),
		tokengen.NewIssuer(testSecret, "vortex-auth-test", 15*time.Minute, 7*24*time.Hour),
		ratelimit.NewLimiter(repo, 5, 15*time.Minute),
		&capturePublisher{},
		notification.Noop{},
		ServiceConfig{},
		nil,
	)

	r := chi.NewRouter()
	r.Route("/api/auth", NewHandle(svc, nil).Routes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, repo
}

func postJSON(t *testing.T, server *httptest.Server, path string, body map[string]string) (*http.Response, apiResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func registerOverHTTP(t *testing.T, server *httptest.Server) tokenResponse {
	t.Helper()

	resp, envelope := postJSON(t, server, "/api/auth/register", map[string]string{
		"email":           "alice@example.com",
		"username":        "alice",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, envelope.Success)

	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(raw, &tokens))
	return tokens
}

func TestHandleRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		server, _ := newTestServer(t)

		tokens := registerOverHTTP(t, server)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
		assert.Equal(t, "alice", tokens.User.Username)
		assert.Equal(t, []string{DefaultRole}, tokens.User.Roles)
	})

	t.Run("missing fields", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, envelope := postJSON(t, server, "/api/auth/register", map[string]string{
			"email": "alice@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, envelope.Success)
		assert.Equal(t, string(CodeValidation), envelope.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, envelope := postJSON(t, server, "/api/auth/register", map[string]string{
			"email":           "not-an-email",
			"username":        "alice",
			"password":        testPassword,
			"confirmPassword": testPassword,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(CodeValidation), envelope.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, envelope := postJSON(t, server, "/api/auth/register", map[string]string{
			"email":           "alice@example.com",
			"username":        "alice",
			"password":        "short",
			"confirmPassword": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(CodeWeakPassword), envelope.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server, _ := newTestServer(t)
		registerOverHTTP(t, server)

		resp, envelope := postJSON(t, server, "/api/auth/login", map[string]string{
			"identifier": "alice",
			"password":   testPassword,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, envelope.Success)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		server, _ := newTestServer(t)
		registerOverHTTP(t, server)

		resp, envelope := postJSON(t, server, "/api/auth/login", map[string]string{
			"identifier": "alice",
			"password":   "Wr0ngPass!",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, string(CodeInvalidCredentials), envelope.Code)
		assert.Equal(t, "Invalid credentials", envelope.Message)
	})

	t.Run("rate limited is 400", func(t *testing.T) {
		server, _ := newTestServer(t)
		registerOverHTTP(t, server)

		for i := 0; i < 5; i++ {
			resp, _ := postJSON(t, server, "/api/auth/login", map[string]string{
				"identifier": "alice",
				"password":   "Wr0ngPass!",
			})
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		}

		resp, envelope := postJSON(t, server, "/api/auth/login", map[string]string{
			"identifier": "alice",
			"password":   testPassword,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(CodeRateLimited), envelope.Code)
	})
}

func TestHandleRefreshAndLogout(t *testing.T) {
	server, _ := newTestServer(t)
	tokens := registerOverHTTP(t, server)

	resp, envelope := postJSON(t, server, "/api/auth/refresh", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, envelope.Success)

	resp, envelope = postJSON(t, server, "/api/auth/logout", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, envelope.Success)

	// the revoked token no longer refreshes
	resp, envelope = postJSON(t, server, "/api/auth/refresh", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(CodeInvalidRefreshToken), envelope.Code)

	// logout of an unknown token still answers 200
	resp, envelope = postJSON(t, server, "/api/auth/logout", map[string]string{
		"refreshToken": "no-such-token",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)

	// a malformed body is no different from an absent token
	resp, err := http.Post(server.URL+"/api/auth/logout", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	envelope = apiResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
}

func TestHandleForgotAndResetPassword(t *testing.T) {
	server, repo := newTestServer(t)
	tokens := registerOverHTTP(t, server)

	t.Run("unknown email gets the same generic answer", func(t *testing.T) {
		respKnown, envKnown := postJSON(t, server, "/api/auth/forgot-password", map[string]string{
			"email": "alice@example.com",
		})
		respUnknown, envUnknown := postJSON(t, server, "/api/auth/forgot-password", map[string]string{
			"email": "nobody@example.com",
		})
		assert.Equal(t, http.StatusOK, respKnown.StatusCode)
		assert.Equal(t, http.StatusOK, respUnknown.StatusCode)
		assert.Equal(t, envKnown.Message, envUnknown.Message)
	})

	t.Run("reset with the stored token", func(t *testing.T) {
		user, err := repo.GetUserByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)

		var token string
		for _, tok := range repo.ResetTokensForUser(user.ID) {
			if !tok.Used {
				token = tok.Token
			}
		}
		require.NotEmpty(t, token)

		resp, envelope := postJSON(t, server, "/api/auth/reset-password", map[string]string{
			"token":           token,
			"password":        "N3wPassword!",
			"confirmPassword": "N3wPassword!",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, envelope.Success)

		// the pre-reset session is gone
		resp, envelope = postJSON(t, server, "/api/auth/refresh", map[string]string{
			"refreshToken": tokens.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, string(CodeInvalidRefreshToken), envelope.Code)
	})

	t.Run("reused token is rejected", func(t *testing.T) {
		user, err := repo.GetUserByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)

		for _, tok := range repo.ResetTokensForUser(user.ID) {
			resp, envelope := postJSON(t, server, "/api/auth/reset-password", map[string]string{
				"token":           tok.Token,
				"password":        "An0therPass!",
				"confirmPassword": "An0therPass!",
			})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, string(CodeInvalidResetToken), envelope.Code)
		}
	})
}

func TestHandleValidateToken(t *testing.T) {
	server, _ := newTestServer(t)
	tokens := registerOverHTTP(t, server)

	decode := func(envelope apiResponse) validateTokenResponse {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		var result validateTokenResponse
		require.NoError(t, json.Unmarshal(raw, &result))
		return result
	}

	resp, envelope := postJSON(t, server, "/api/auth/validate-token", map[string]string{
		"token": tokens.AccessToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode(envelope)
	assert.True(t, result.Valid)
	assert.Equal(t, "alice", result.Username)

	// introspection of garbage is still a 200, just not valid
	resp, envelope = postJSON(t, server, "/api/auth/validate-token", map[string]string{
		"token": "garbage",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode(envelope).Valid)
}

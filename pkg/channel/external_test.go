package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
)

type fakeTokenSource struct{ token string }

func (f fakeTokenSource) Token() (*oauth2Token, error) {
	return &oauth2Token{AccessToken: f.token, TokenType: "Bearer"}, nil
}

func signIdentityToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestExternalChannelVerifiesIdentityTokenSubject(t *testing.T) {
	const secret = "shared-secret"
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(externalChatResponse{
			Text:          "handled externally",
			IdentityToken: signIdentityToken(t, secret, "carol-ext"),
		})
	}))
	defer server.Close()

	profiles := registry.NewProfileRegistry()
	require.NoError(t, profiles.Set(registry.AgentProfile{ID: "carol", DisplayName: "Carol", ExternalIdentity: "carol-ext"}))

	ch := NewExternalChannel(config.ExternalChannelConfig{
		Endpoint:           server.URL,
		VerificationSecret: secret,
		Timeout:            5,
	}, profiles, nil)
	ch.tokenSource = fakeTokenSource{token: "access-token-123"}

	out, err := ch.Chat(t.Context(), "carol", []llms.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "handled externally", out)
	assert.Equal(t, "Bearer access-token-123", gotAuth)
}

func TestExternalChannelRejectsMismatchedIdentitySubject(t *testing.T) {
	const secret = "shared-secret"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(externalChatResponse{
			Text:          "handled externally",
			IdentityToken: signIdentityToken(t, secret, "someone-else"),
		})
	}))
	defer server.Close()

	profiles := registry.NewProfileRegistry()
	require.NoError(t, profiles.Set(registry.AgentProfile{ID: "carol", DisplayName: "Carol", ExternalIdentity: "carol-ext"}))

	ch := NewExternalChannel(config.ExternalChannelConfig{
		Endpoint:           server.URL,
		VerificationSecret: secret,
		Timeout:            5,
	}, profiles, nil)
	ch.tokenSource = fakeTokenSource{token: "access-token-123"}

	_, err := ch.Chat(t.Context(), "carol", nil)
	assert.Error(t, err)
}

func TestExternalChannelRejectsAgentWithoutBoundIdentity(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	require.NoError(t, profiles.Set(registry.AgentProfile{ID: "dave", DisplayName: "Dave"}))

	ch := NewExternalChannel(config.ExternalChannelConfig{Endpoint: "http://unused", Timeout: 5}, profiles, nil)
	ch.tokenSource = fakeTokenSource{token: "x"}

	_, err := ch.Chat(t.Context(), "dave", nil)
	assert.Error(t, err)
}

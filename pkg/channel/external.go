package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/negotium-ai/negotium/pkg/config"
	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/ratelimit"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// ExternalChannel routes agents whose profile declares an ExternalIdentity
// to an identity-provider-hosted per-user endpoint, authenticating
// outbound requests with an oauth2 client-credentials token and verifying
// any identity-provider-signed response token before trusting its content.
type ExternalChannel struct {
	cfg         config.ExternalChannelConfig
	profiles    *registry.ProfileRegistry
	limiter     *ratelimit.Limiter
	tokenSource oauth2TokenSource
	httpClient  *http.Client
}

// oauth2TokenSource is the subset of oauth2.TokenSource this channel needs,
// narrowed so tests can substitute a fake without a live token endpoint.
type oauth2TokenSource interface {
	Token() (*oauth2Token, error)
}

// oauth2Token mirrors the fields of oauth2.Token this channel reads, kept
// local so the test fake doesn't need the real oauth2 package.
type oauth2Token struct {
	AccessToken string
	TokenType   string
}

type clientCredentialsSource struct {
	cfg clientcredentials.Config
	ctx context.Context
}

func (s clientCredentialsSource) Token() (*oauth2Token, error) {
	t, err := s.cfg.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2Token{AccessToken: t.AccessToken, TokenType: t.TokenType}, nil
}

// NewExternalChannel builds an ExternalChannel authenticating via the
// oauth2 client-credentials grant described in cfg.
func NewExternalChannel(cfg config.ExternalChannelConfig, profiles *registry.ProfileRegistry, limiter *ratelimit.Limiter) *ExternalChannel {
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &ExternalChannel{
		cfg:         cfg,
		profiles:    profiles,
		limiter:     limiter,
		tokenSource: clientCredentialsSource{cfg: ccCfg, ctx: context.Background()},
		httpClient:  &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}
}

func (c *ExternalChannel) Profile(ctx context.Context, agentID string) (registry.AgentProfile, error) {
	p, ok := c.profiles.Get(agentID)
	if !ok {
		return registry.AgentProfile{}, negerrors.NewChannelUnavailableError(agentID, "profile lookup", fmt.Errorf("agent not registered"))
	}
	return p, nil
}

type externalChatRequest struct {
	AgentID  string         `json:"agent_id"`
	Messages []llms.Message `json:"messages"`
}

type externalChatResponse struct {
	Text          string `json:"text"`
	IdentityToken string `json:"identity_token,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Chat posts the turn to the configured endpoint, bearer-authenticated by
// the client-credentials token, and — when the response carries an
// identity token — verifies it (HS256, shared verification secret) before
// trusting the response came from the profile's declared identity.
func (c *ExternalChannel) Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error) {
	profile, err := c.Profile(ctx, agentID)
	if err != nil {
		return "", err
	}
	if profile.ExternalIdentity == "" {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", fmt.Errorf("profile has no bound external identity"))
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", err)
	}
	defer c.limiter.Release()

	tok, err := c.tokenSource.Token()
	if err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "oauth token", err)
	}

	body, err := json.Marshal(externalChatRequest{AgentID: profile.ExternalIdentity, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("channel: marshal external chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("channel: build external chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tok.TokenType+" "+tok.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var out externalChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", fmt.Errorf("remote error: %s", out.Error))
	}
	if out.IdentityToken != "" {
		if err := c.verifyIdentity(out.IdentityToken, profile.ExternalIdentity); err != nil {
			return "", negerrors.NewChannelUnavailableError(agentID, "chat", fmt.Errorf("identity verification failed: %w", err))
		}
	}
	return out.Text, nil
}

// verifyIdentity checks an inbound HS256 token's subject claim matches the
// identity the profile declared, using the channel's shared verification
// secret rather than a live JWKS fetch.
func (c *ExternalChannel) verifyIdentity(tokenString, wantSubject string) error {
	if c.cfg.VerificationSecret == "" {
		return fmt.Errorf("no verification secret configured")
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(c.cfg.VerificationSecret), nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("invalid identity token: %w", err)
	}
	if claims.Subject != wantSubject {
		return fmt.Errorf("identity token subject %q does not match declared identity %q", claims.Subject, wantSubject)
	}
	return nil
}

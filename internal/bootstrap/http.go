package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/opsconsole/config"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewHTTPClient builds the client shared by the backend, camera and detector adapters.
// It keeps cookies per registrable domain. When OAuth is configured, requests carry a
// client-credentials bearer token; the token endpoint is discovered from IssuerURL
// when TokenURL is empty.
func NewHTTPClient(ctx context.Context, cfg config.BackendConfig, logger *slog.Logger) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	base := &http.Client{Timeout: cfg.Timeout, Jar: jar}

	if cfg.OAuth.ClientID == "" {
		return base, nil
	}
	if !cfg.OAuth.Enabled() {
		return nil, errors.New("BACKEND_OAUTH_CLIENT_ID requires BACKEND_OAUTH_TOKEN_URL or BACKEND_OAUTH_ISSUER_URL")
	}

	tokenURL, err := resolveTokenURL(ctx, cfg.OAuth, base)
	if err != nil {
		return nil, err
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.OAuth.Scopes,
	}

	// Token requests use base so they share its timeout; the returned client must
	// outlive ctx, so the token source is bound to a background context.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := &http.Client{
		Timeout: cfg.Timeout,
		Jar:     jar,
		Transport: &oauth2.Transport{
			Source: cc.TokenSource(tokenCtx),
			Base:   http.DefaultTransport,
		},
	}

	if logger != nil {
		logger.InfoContext(ctx, "backend oauth enabled",
			"client_id", cfg.OAuth.ClientID,
			"token_url", tokenURL,
			"scopes", len(cfg.OAuth.Scopes),
		)
	}
	return client, nil
}

func resolveTokenURL(ctx context.Context, cfg config.BackendOAuthConfig, hc *http.Client) (string, error) {
	if cfg.TokenURL != "" {
		return cfg.TokenURL, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, hc), cfg.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("discover token endpoint from %s: %w", cfg.IssuerURL, err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("issuer %s does not advertise a token endpoint", cfg.IssuerURL)
	}
	return tokenURL, nil
}

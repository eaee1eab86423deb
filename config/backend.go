package config

import (
	"strings"
	"time"

	"github.com/target/opsconsole/internal/adapters/backend"
)

// BackendConfig describes the operations REST backend.
type BackendConfig struct {
	BaseURL string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8080/api"`
	// Timeout bounds each request; 0 leaves it to the transport.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	// UsersExpression is a JMESPath expression selecting the identity array from GET /users.
	UsersExpression string `env:"BACKEND_USERS_EXPRESSION" envDefault:"type(@) == 'array' && @ || users"`

	OAuth BackendOAuthConfig `envPrefix:"BACKEND_OAUTH_"`
}

// BackendOAuthConfig enables client-credentials bearer tokens on backend requests.
// Either TokenURL or IssuerURL (for OIDC discovery) must be set when ClientID is.
type BackendOAuthConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	TokenURL     string   `env:"TOKEN_URL"`
	IssuerURL    string   `env:"ISSUER_URL"`
	Scopes       []string `env:"SCOPES"        envSeparator:" "`
}

// Enabled reports whether OAuth is configured.
func (c BackendOAuthConfig) Enabled() bool {
	return c.ClientID != "" && (c.TokenURL != "" || c.IssuerURL != "")
}

// Sanitize trims values and fills defaults.
func (c *BackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.UsersExpression = strings.TrimSpace(c.UsersExpression); c.UsersExpression == "" {
		c.UsersExpression = backend.DefaultUsersExpression
	}
	c.OAuth.ClientID = strings.TrimSpace(c.OAuth.ClientID)
	c.OAuth.TokenURL = strings.TrimSpace(c.OAuth.TokenURL)
	c.OAuth.IssuerURL = strings.TrimRight(strings.TrimSpace(c.OAuth.IssuerURL), "/")
	scopes := c.OAuth.Scopes[:0]
	for _, s := range c.OAuth.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	c.OAuth.Scopes = scopes
}

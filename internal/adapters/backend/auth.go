package backend

import (
	"context"
	"net/http"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	apperrors "github.com/target/opsconsole/internal/errors"
)

type credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Login posts the credentials to /login. Any non-2xx status is InvalidCredentials.
func (c *Client) Login(ctx context.Context, key, secret string) (domainauth.Identity, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/login",
		body:   credentials{Key: key, Secret: secret},
	})
	if err != nil {
		return domainauth.Identity{}, err
	}
	if !resp.ok() {
		return domainauth.Identity{}, apperrors.InvalidCredentials(errorMessage(resp))
	}

	id, err := decode[domainauth.Identity](resp, "login response")
	if err != nil {
		return domainauth.Identity{}, err
	}
	id = id.Normalize()
	if id.Key == "" {
		id.Key = key
	}
	if err := id.Validate(); err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "backend returned an unusable identity")
	}
	return id, nil
}

// ChangeSecret posts to /auth/change-secret. Any non-2xx status is RemoteRejected.
func (c *Client) ChangeSecret(ctx context.Context, key, newSecret string) error {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/change-secret",
		body:   credentials{Key: key, Secret: newSecret},
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return apperrors.RemoteRejected(errorMessage(resp))
	}
	return nil
}

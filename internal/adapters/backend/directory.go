package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	apperrors "github.com/target/opsconsole/internal/errors"
)

// ListEmployees fetches GET /employees.
func (c *Client) ListEmployees(ctx context.Context) ([]domainauth.Identity, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/employees"})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, apperrors.RemoteRejectedf("list employees: %s", errorMessage(resp))
	}
	ids, err := decode[[]domainauth.Identity](resp, "employee list")
	if err != nil {
		return nil, err
	}
	return normalizeAll(ids), nil
}

// CreateEmployee posts id to /employees and returns the stored record.
// A 2xx with an empty body echoes id back.
func (c *Client) CreateEmployee(ctx context.Context, id domainauth.Identity) (domainauth.Identity, error) {
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/employees", body: id})
	if err != nil {
		return domainauth.Identity{}, err
	}
	if !resp.ok() {
		return domainauth.Identity{}, apperrors.RemoteRejectedf("create employee %s: %s", id.Key, errorMessage(resp))
	}
	if len(resp.body) == 0 || string(resp.body) == "null" {
		return id, nil
	}
	stored, err := decode[domainauth.Identity](resp, "created employee")
	if err != nil {
		return domainauth.Identity{}, err
	}
	stored = stored.Normalize()
	if stored.Key == "" {
		return id, nil
	}
	return stored, nil
}

// UpdateEmployee posts the full record to /employees/update and returns the stored record.
// When id carries a version it is sent as If-Match, and 409/412 become Conflict. The new version
// comes from the response body, else from a numeric ETag, else it is id's version plus one.
func (c *Client) UpdateEmployee(ctx context.Context, id domainauth.Identity) (domainauth.Identity, error) {
	req := request{method: http.MethodPost, path: "/employees/update", body: id}
	if id.Version > 0 {
		req.headers = map[string]string{"If-Match": strconv.Quote(strconv.FormatInt(id.Version, 10))}
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return domainauth.Identity{}, err
	}
	if !resp.ok() {
		if id.Version > 0 && (resp.status == http.StatusConflict || resp.status == http.StatusPreconditionFailed) {
			return domainauth.Identity{}, apperrors.Conflictf("employee %s changed since version %d: %s", id.Key, id.Version, errorMessage(resp))
		}
		return domainauth.Identity{}, apperrors.RemoteRejectedf("update employee %s: %s", id.Key, errorMessage(resp))
	}

	if len(resp.body) > 0 && string(resp.body) != "null" {
		if stored, err := decode[domainauth.Identity](resp, "updated employee"); err == nil {
			if stored = stored.Normalize(); stored.Key != "" {
				return stored, nil
			}
		}
	}
	if id.Version > 0 {
		if v, ok := etagVersion(resp.etag); ok {
			id.Version = v
		} else {
			id.Version++
		}
	}
	return id, nil
}

// etagVersion parses a numeric ETag such as "4" or W/"4".
func etagVersion(etag string) (int64, bool) {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	v, err := strconv.ParseInt(strings.Trim(etag, `"`), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// DeleteEmployee posts to /employees/{key}/delete. The backend's reason is surfaced on failure;
// a 404 is additionally tagged NotFound.
func (c *Client) DeleteEmployee(ctx context.Context, key string) error {
	if key == "" || key == "." || key == ".." {
		return apperrors.ValidationField("key", "invalid employee key")
	}
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/employees/" + url.PathEscape(key) + "/delete"})
	if err != nil {
		return err
	}
	if resp.ok() {
		return nil
	}
	msg := errorMessage(resp)
	if resp.status == http.StatusNotFound {
		return apperrors.Wrap(apperrors.NotFoundf("employee %s not found", key), apperrors.ErrCodeRemoteRejected, msg)
	}
	return apperrors.RemoteRejected(msg)
}

// ListUsers fetches GET /users and extracts the identity array with the configured expression.
func (c *Client) ListUsers(ctx context.Context) ([]domainauth.Identity, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/users"})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, apperrors.RemoteRejectedf("list users: %s", errorMessage(resp))
	}

	var doc any
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode user list")
	}
	selected, err := jmespath.Search(c.usersExpr, doc)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "evaluate %q", c.usersExpr)
	}
	if selected == nil {
		return nil, nil
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "re-encode user list")
	}
	var ids []domainauth.Identity
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "user list is not an array of identities")
	}
	return normalizeAll(ids), nil
}

func normalizeAll(ids []domainauth.Identity) []domainauth.Identity {
	for i := range ids {
		ids[i] = ids[i].Normalize()
	}
	return ids
}

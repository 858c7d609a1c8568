// Package oauth implements the identity-provider calls used during
// session teardown and the background worker that issues them.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// revokePath is the provider endpoint that invalidates refresh tokens.
const revokePath = "/services/oauth2/revoke"

// RevokeRefreshToken makes the one-shot revocation call against the
// identity provider at serverURL. Any non-2xx response is an error; no
// retries are attempted here.
func RevokeRefreshToken(ctx context.Context, client *http.Client, serverURL, clientID, refreshToken string) error {
	endpoint := strings.TrimRight(serverURL, "/") + revokePath
	form := url.Values{
		"token":     {refreshToken},
		"client_id": {clientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revoke request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

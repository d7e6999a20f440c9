package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rxlocator/platform/pkg/gateway/httpclient"
	"golang.org/x/oauth2"
)

// OIDCVerifier resolves access tokens against the provider's userinfo
// endpoint. The provider performs the actual token validation.
type OIDCVerifier struct {
	userInfoURL string
	client      *http.Client
}

func NewOIDCVerifier(issuer, userInfoURL string, timeout time.Duration) (*OIDCVerifier, error) {
	if userInfoURL == "" {
		if issuer == "" {
			return nil, fmt.Errorf("OIDC configuration incomplete")
		}
		userInfoURL = strings.TrimRight(issuer, "/") + "/userinfo"
	}
	return &OIDCVerifier{
		userInfoURL: userInfoURL,
		client:      httpclient.New(timeout),
	}, nil
}

type userInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: token is empty", ErrUnauthorized)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, fmt.Errorf("%w: userinfo responded %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Identity{}, &httpclient.StatusError{Service: "userinfo", Code: resp.StatusCode}
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Subject == "" {
		return Identity{}, fmt.Errorf("%w: userinfo has no subject", ErrUnauthorized)
	}
	return Identity{UserID: info.Subject, Email: info.Email}, nil
}

package ims

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// statusInvalidCredentials is the 401 body status for rejected credentials.
const statusInvalidCredentials = "invalid-credentials"

type loginRequest struct {
	Identification string `json:"identification"`
	Password       string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

// tokenClaims are the claims the client reads from a login token.
type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// Login authenticates to the IMS server and keeps the resulting
// credentials.
//
// Rejected credentials return false with the previous session left as
// it was. Any other failure is returned as an error, also leaving the
// session unchanged. If the server names a preferred username, the
// session uses it instead of username.
func (c *Client) Login(ctx context.Context, username, password string) (bool, error) {
	if username == "" {
		return false, fmt.Errorf("%w: username", ErrMissingArgument)
	}
	if password == "" {
		return false, fmt.Errorf("%w: password", ErrMissingArgument)
	}

	url, err := c.ResolveURL(ctx, EndpointAuth, nil)
	if err != nil {
		return false, err
	}

	logger := c.logger.With(zap.String("username", username))
	logger.Info("authenticating to IMS server")

	// Never authenticated: a rejected login must not clear the current session.
	resp, err := c.fetcher.fetchJSON(ctx, url, jsonRequest{
		Body:      loginRequest{Identification: username, Password: password},
		Anonymous: true,
	})
	if err != nil {
		return false, fmt.Errorf("ims: failed to authenticate: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		var body loginResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("ims: failed to authenticate: non-JSON response for login: %w", err)
		}
		if body.Status == statusInvalidCredentials {
			logger.Warn("credentials are invalid")
			return false, nil
		}
		return false, fmt.Errorf("ims: failed to authenticate: unknown JSON error status: %q", body.Status)
	}

	if !isSuccess(resp.StatusCode) {
		return false, fmt.Errorf("ims: failed to authenticate: %w", &ResponseError{
			Resource:   EndpointAuth,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("ims: failed to read credentials: %w", err)
	}
	var body loginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return false, invalidField("credentials", "", err)
	}
	if body.Token == "" {
		return false, fmt.Errorf("%w: no token in retrieved credentials", ErrInvalidToken)
	}

	user, err := userFromToken(username, body.Token, c.config.Now())
	if err != nil {
		return false, err
	}
	if user.Username != username {
		logger.Debug("using preferred username from credentials", zap.String("preferred_username", user.Username))
	}

	if err := c.session.SetUser(ctx, user); err != nil {
		return false, err
	}

	logger.Info("logged in",
		zap.String("user", user.Username),
		zap.Time("expiration", user.Credentials.Expiration),
	)
	return true, nil
}

// userFromToken builds a user from the token's claims. A token already
// expired at now is rejected. The signature is
// not checked; the server verified the credentials when it issued the token.
func userFromToken(username, token string, now time.Time) (*User, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no expiration in retrieved credentials", ErrInvalidToken)
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: retrieved credentials expired at %s", ErrInvalidToken, claims.ExpiresAt.Time)
	}

	if claims.PreferredUsername != "" {
		username = claims.PreferredUsername
	}

	return &User{
		Username: username,
		Credentials: Credentials{
			Token:      token,
			Expiration: claims.ExpiresAt.Time,
		},
	}, nil
}

// Logout discards the current credentials.
// The server is not told; the token stays valid until it expires.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	if user := c.session.User(); user != nil {
		c.logger.Info("logging out", zap.String("user", user.Username))
	}

	if err := c.session.SetUser(ctx, nil); err != nil {
		return false, err
	}
	return true, nil
}

// IsLoggedIn reports whether the client holds unexpired credentials.
func (c *Client) IsLoggedIn() bool {
	return c.session.IsLive()
}

// User returns the current user, or nil if nobody is logged in.
func (c *Client) User() *User {
	return c.session.User()
}

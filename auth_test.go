package ims

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aadithya-v/ims/store"
)

func TestLogin(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	start := clock.Now()

	if c.IsLoggedIn() {
		t.Fatal("New client should not be logged in")
	}

	token := login(t, c, f, clock, "Hubcap")

	if !c.IsLoggedIn() {
		t.Error("Client should be logged in")
	}
	user := c.User()
	if user == nil {
		t.Fatal("User should not be nil")
	}
	if user.Username != "Hubcap" {
		t.Errorf("Expected username Hubcap, got %q", user.Username)
	}
	if user.Credentials.Token != token {
		t.Error("Expected session to hold the issued token")
	}
	if !user.Credentials.Expiration.After(start) {
		t.Errorf("Expected expiration after %v, got %v", start, user.Credentials.Expiration)
	}

	if body := f.lastLogin(); body.Identification != "Hubcap" || body.Password != "password" {
		t.Errorf("Unexpected login body %+v", body)
	}
	if got := f.header("/auth").Get("Content-Type"); got != jsonContentType {
		t.Errorf("Expected JSON login request, got %q", got)
	}
}

func TestLoginPreferredUsername(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)

	token := testToken(t, clock.Now().Add(time.Hour), "Hubcap")
	f.setLogin(fakeDoc{body: fmt.Sprintf(`{"token": %q}`, token)})

	ok, err := c.Login(context.Background(), "hubcap@example.com", "password")
	if err != nil || !ok {
		t.Fatalf("Failed to log in: %v, %v", ok, err)
	}
	if got := c.User().Username; got != "Hubcap" {
		t.Errorf("Expected preferred username Hubcap, got %q", got)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	token := login(t, c, f, clock, "Hubcap")

	f.setLogin(fakeDoc{body: `{"status": "invalid-credentials"}`, status: http.StatusUnauthorized})

	ok, err := c.Login(context.Background(), "Bucket", "wrong")
	if err != nil {
		t.Fatalf("Expected no error for invalid credentials, got %v", err)
	}
	if ok {
		t.Error("Login should fail with invalid credentials")
	}

	user := c.User()
	if user == nil || user.Username != "Hubcap" || user.Credentials.Token != token {
		t.Errorf("Expected previous session to survive, got %v", user)
	}
	if f.header("/auth").Get("Authorization") != "" {
		t.Error("Login request should not carry credentials")
	}
}

func TestLoginFailures(t *testing.T) {
	clock := newTestClock()

	tests := []struct {
		name  string
		login func(t *testing.T) fakeDoc
		check func(error) bool
	}{
		{
			name: "unknown 401 status",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: `{"status": "locked"}`, status: http.StatusUnauthorized}
			},
			check: func(err error) bool { return err != nil },
		},
		{
			name: "401 without body",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{status: http.StatusUnauthorized}
			},
			check: func(err error) bool { return err != nil },
		},
		{
			name: "server error",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: `{}`, status: http.StatusInternalServerError}
			},
			check: func(err error) bool {
				var respErr *ResponseError
				return errors.As(err, &respErr) && respErr.StatusCode == http.StatusInternalServerError
			},
		},
		{
			name: "missing token",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: `{}`}
			},
			check: func(err error) bool { return errors.Is(err, ErrInvalidToken) },
		},
		{
			name: "malformed token",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: `{"token": "not-a-jwt"}`}
			},
			check: func(err error) bool { return errors.Is(err, ErrInvalidToken) },
		},
		{
			name: "token without expiration",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: fmt.Sprintf(`{"token": %q}`, testToken(t, time.Time{}, ""))}
			},
			check: func(err error) bool { return errors.Is(err, ErrInvalidToken) },
		},
		{
			name: "expired token",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: fmt.Sprintf(`{"token": %q}`, testToken(t, clock.Now().Add(-time.Minute), ""))}
			},
			check: func(err error) bool { return errors.Is(err, ErrInvalidToken) },
		},
		{
			name: "token expiring now",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: fmt.Sprintf(`{"token": %q}`, testToken(t, clock.Now(), ""))}
			},
			check: func(err error) bool { return errors.Is(err, ErrInvalidToken) },
		},
		{
			name: "not JSON",
			login: func(t *testing.T) fakeDoc {
				return fakeDoc{body: `<html></html>`, contentType: "text/html"}
			},
			check: func(err error) bool { return errors.Is(err, ErrNotJSON) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeIMS(t)
			c, _ := newTestClient(t, f, clock, nil)
			f.setLogin(tt.login(t))

			ok, err := c.Login(context.Background(), "Hubcap", "password")
			if ok {
				t.Error("Login should not succeed")
			}
			if !tt.check(err) {
				t.Errorf("Unexpected error: %v", err)
			}
			if c.IsLoggedIn() {
				t.Error("Failed login should not create a session")
			}
		})
	}
}

func TestLoginMissingArguments(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)
	ctx := context.Background()

	if _, err := c.Login(ctx, "", "password"); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument for username, got %v", err)
	}
	if _, err := c.Login(ctx, "Hubcap", ""); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument for password, got %v", err)
	}
	if n := f.total(); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestLogout(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	kv := store.NewMemoryStore()
	c, _ := newTestClient(t, f, clock, kv)
	ctx := context.Background()
	login(t, c, f, clock, "Hubcap")

	ok, err := c.Logout(ctx)
	if err != nil || !ok {
		t.Fatalf("Failed to log out: %v, %v", ok, err)
	}
	if c.IsLoggedIn() {
		t.Error("Client should not be logged in after logout")
	}
	if c.User() != nil {
		t.Error("User should be nil after logout")
	}
	if _, err := kv.Get(ctx, credentialsBucket, credentialsKey); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected stored credentials to be removed, got %v", err)
	}

	// Logging out again is harmless.
	if ok, err := c.Logout(ctx); err != nil || !ok {
		t.Errorf("Failed to log out twice: %v, %v", ok, err)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	kv := store.NewMemoryStore()
	c, _ := newTestClient(t, f, clock, kv)
	login(t, c, f, clock, "Hubcap")

	restarted, _ := newTestClient(t, f, clock, kv)
	if !restarted.IsLoggedIn() {
		t.Fatal("Restarted client should be logged in")
	}
	if got, want := restarted.User(), c.User(); !got.Credentials.Expiration.Equal(want.Credentials.Expiration) ||
		got.Username != want.Username || got.Credentials.Token != want.Credentials.Token {
		t.Errorf("Expected %+v after restart, got %+v", want, got)
	}
}

func TestCredentialsExpire(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	login(t, c, f, clock, "Hubcap")

	clock.Advance(time.Hour)

	if c.IsLoggedIn() {
		t.Error("Credentials should be expired at their expiration time")
	}
	if c.User() == nil {
		t.Error("Expired user should still be reported")
	}

	if _, err := c.Events(context.Background()); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if got := f.header("/events").Get("Authorization"); got != "" {
		t.Errorf("Expected unauthenticated request with expired credentials, got %q", got)
	}
}

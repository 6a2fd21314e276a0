package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotFound indicates no identity matched the lookup.
	ErrNotFound = errors.New("identity not found in keycloak")
	// ErrAlreadyExists indicates an identity with the same username or email already exists remotely.
	ErrAlreadyExists = errors.New("identity already exists in keycloak")
)

// Config captures the connection settings for the Keycloak admin API.
type Config struct {
	// BaseURL is the Keycloak server root, e.g. http://localhost:8081.
	BaseURL string
	// Realm is the realm whose identities are managed.
	Realm string
	// AdminRealm is the realm the administrative account authenticates against (usually "master").
	AdminRealm string
	// ClientID is the OAuth client used for the password grant (usually "admin-cli").
	ClientID string
	Username string
	Password string
}

// Client talks to the Keycloak admin REST API on behalf of an administrative
// account. The admin session token is acquired lazily through a password
// grant and reused until it expires.
type Client struct {
	baseURL    string
	realm      string
	httpClient *http.Client
}

// passwordTokenSource performs the resource-owner password grant. Wrapped in
// oauth2.ReuseTokenSource it re-runs the grant whenever the cached token
// expires, which sidesteps admin-session refresh-token lifetimes entirely.
type passwordTokenSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s passwordTokenSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
}

// NewClient creates a Keycloak admin client. ctx bounds the lifetime of the
// token source; pass the process context, not a request context.
func NewClient(ctx context.Context, cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	conf := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL: baseURL + "/realms/" + cfg.AdminRealm + "/protocol/openid-connect/token",
		},
	}
	source := oauth2.ReuseTokenSource(nil, passwordTokenSource{
		ctx:      ctx,
		conf:     conf,
		username: cfg.Username,
		password: cfg.Password,
	})

	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = 15 * time.Second

	return &Client{
		baseURL:    baseURL,
		realm:      cfg.Realm,
		httpClient: httpClient,
	}
}

// ListUsers returns all identities in the realm. Transport and auth failures
// surface as errors so callers can tell "no identities" apart from "provider
// unreachable".
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, c.usersPath(""), nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// FindByEmail returns the identity with exactly the given email, or ErrNotFound.
func (c *Client) FindByEmail(ctx context.Context, email string) (User, error) {
	return c.findOne(ctx, url.Values{"email": {email}, "exact": {"true"}})
}

// FindByUsername returns the identity with exactly the given username, or ErrNotFound.
func (c *Client) FindByUsername(ctx context.Context, username string) (User, error) {
	return c.findOne(ctx, url.Values{"username": {username}, "exact": {"true"}})
}

func (c *Client) findOne(ctx context.Context, query url.Values) (User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, c.usersPath("")+"?"+query.Encode(), nil, &users); err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, ErrNotFound
	}
	return users[0], nil
}

// EffectiveRealmRoles returns the effective (composite) realm-level role names
// granted to the identity, including inherited ones.
func (c *Client) EffectiveRealmRoles(ctx context.Context, userID string) ([]string, error) {
	var roles []role
	path := c.usersPath(userID) + "/role-mappings/realm/composite"
	if err := c.do(ctx, http.MethodGet, path, nil, &roles); err != nil {
		return nil, fmt.Errorf("realm roles for %s: %w", userID, err)
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

// CreateUser registers a new enabled identity. It refuses with
// ErrAlreadyExists when the username or email is already taken remotely.
// A non-empty temporaryPassword is set as a one-time credential afterwards.
func (c *Client) CreateUser(ctx context.Context, username, email, firstName, lastName, temporaryPassword string) error {
	if _, err := c.FindByUsername(ctx, username); err == nil {
		return fmt.Errorf("username %s: %w", username, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check username %s: %w", username, err)
	}
	if _, err := c.FindByEmail(ctx, email); err == nil {
		return fmt.Errorf("email %s: %w", email, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check email %s: %w", email, err)
	}

	user := User{
		Username:      username,
		Email:         email,
		FirstName:     firstName,
		LastName:      lastName,
		Enabled:       true,
		EmailVerified: true,
	}
	if err := c.do(ctx, http.MethodPost, c.usersPath(""), user, nil); err != nil {
		return fmt.Errorf("create user %s: %w", username, err)
	}

	if strings.TrimSpace(temporaryPassword) == "" {
		return nil
	}

	// The create response carries no body; look the identity up again for its id.
	created, err := c.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("locate created user %s: %w", username, err)
	}
	return c.resetPassword(ctx, created.ID, temporaryPassword, true)
}

func (c *Client) resetPassword(ctx context.Context, userID, password string, temporary bool) error {
	cred := credential{Type: "password", Value: password, Temporary: temporary}
	path := c.usersPath(userID) + "/reset-password"
	if err := c.do(ctx, http.MethodPut, path, cred, nil); err != nil {
		return fmt.Errorf("set password for %s: %w", userID, err)
	}
	return nil
}

// UpdateProfile pushes first and last name to the identity with the given
// username. ErrNotFound when no such identity exists remotely.
func (c *Client) UpdateProfile(ctx context.Context, username, firstName, lastName string) error {
	user, err := c.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", username, err)
	}

	user.FirstName = firstName
	user.LastName = lastName
	if err := c.do(ctx, http.MethodPut, c.usersPath(user.ID), user, nil); err != nil {
		return fmt.Errorf("update profile %s: %w", username, err)
	}
	return nil
}

// DeleteByEmail removes the identity with the given email from the realm.
func (c *Client) DeleteByEmail(ctx context.Context, email string) error {
	user, err := c.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("delete by email %s: %w", email, err)
	}
	return c.deleteByID(ctx, user.ID)
}

// DeleteByUsername removes the identity with the given username from the realm.
func (c *Client) DeleteByUsername(ctx context.Context, username string) error {
	user, err := c.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("delete by username %s: %w", username, err)
	}
	return c.deleteByID(ctx, user.ID)
}

func (c *Client) deleteByID(ctx context.Context, userID string) error {
	if err := c.do(ctx, http.MethodDelete, c.usersPath(userID), nil, nil); err != nil {
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	return nil
}

func (c *Client) usersPath(userID string) string {
	path := "/admin/realms/" + c.realm + "/users"
	if userID != "" {
		path += "/" + userID
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case resp.StatusCode >= 400:
		return fmt.Errorf("keycloak api status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

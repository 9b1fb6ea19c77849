package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) token(ctx context.Context, op, path string, body any) (model.Token, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path, body, false)
	if err != nil {
		return model.Token{}, err
	}
	defer resp.Body.Close()

	var tok model.Token
	if err := decode(op, resp.Body, &tok); err != nil {
		return model.Token{}, err
	}
	if tok.AccessToken == "" || tok.ID <= 0 {
		return model.Token{}, fmt.Errorf("%s: %w: missing token or user id", op, ErrMalformedResponse)
	}
	return tok, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (model.Token, error) {
	return c.token(ctx, "login", "/api/auth/login", loginRequest{Email: email, Password: password})
}

// RegisterAccount creates a participant account and signs it in.
func (c *Client) RegisterAccount(ctx context.Context, name, email, password string) (model.Token, error) {
	return c.token(ctx, "register_account", "/api/auth/register", registerRequest{Name: name, Email: email, Password: password})
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	const op = "me"
	var u model.User
	if err := c.getJSON(ctx, op, "/api/users/me", &u); err != nil {
		return model.User{}, err
	}
	if u.ID <= 0 {
		return model.User{}, fmt.Errorf("%s: %w: user id %d", op, ErrMalformedResponse, u.ID)
	}
	return u, nil
}

// Identity builds the auth identity for a token response.
func Identity(tok model.Token) auth.Identity {
	return auth.Identity{
		UserID: tok.ID,
		Role:   tok.Role,
		Token:  tok.AccessToken,
	}
}

// IdentityFromToken resolves a bare bearer token into an identity by asking
// the service who it belongs to.
func (c *Client) IdentityFromToken(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, errors.New("identity: empty token")
	}
	u, err := c.Me(auth.WithIdentity(ctx, auth.Identity{Token: token}))
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: u.ID, Role: u.Role, Token: token}, nil
}

package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session carries the identity and credentials every component reads instead
// of reaching for ambient globals. UserID comes from the login collaborator.
// The token's claims are read without verification (that is the server's job)
// to recover the username and detect an already-expired token early.
type Session struct {
	ID       string
	UserID   int64
	Username string
	Avatar   string
	Token    string
}

func NewSession(cfg *Config) (*Session, error) {
	s := &Session{
		ID:       uuid.NewString(),
		UserID:   cfg.UserID,
		Username: cfg.Name,
		Avatar:   cfg.Avatar,
		Token:    cfg.Token,
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cfg.Token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if username, ok := claims["username"].(string); ok && s.Username == "" {
		s.Username = username
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if exp.Before(time.Now()) {
			return nil, fmt.Errorf("token expired at %s", exp.Format(time.RFC3339))
		}
	}
	return s, nil
}

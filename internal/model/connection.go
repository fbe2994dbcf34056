package model

import (
	"fmt"
	"time"
)

// Environment selects the accounting provider deployment.
type Environment string

// Provider environments.
const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvironmentSandbox, EnvironmentProduction:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown environment %q (want sandbox or production)", s)
	}
}

// Connection holds the OAuth credentials for one provider company.
// There is at most one active connection per environment.
type Connection struct {
	TokenExpiresAt        time.Time
	RefreshTokenExpiresAt time.Time
	UpdatedAt             time.Time
	ID                    string
	AccessToken           string
	RefreshToken          string
	RealmID               string
	Environment           Environment
	IsActive              bool
}

// ExpiresWithin reports whether the access token expires before now+window.
func (c *Connection) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !c.TokenExpiresAt.After(now.Add(window))
}

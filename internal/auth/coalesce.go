package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/sync/singleflight"
)

// LoginGroup shares one backend login between identical attempts that are
// in flight at the same time. It outlives the per-request stores, so the
// web shell keeps a single group for the process.
type LoginGroup struct {
	group singleflight.Group
}

// Scoped wraps client so that its logins are coalesced within scope, for
// example a session ID. Logout is passed through untouched.
func (g *LoginGroup) Scoped(scope string, client Authenticator) Authenticator {
	return &scopedAuthenticator{group: g, scope: scope, Authenticator: client}
}

type scopedAuthenticator struct {
	Authenticator
	group *LoginGroup
	scope string
}

// Login runs the shared call detached from the caller's cancellation so a
// waiter is not failed by another request going away.
func (c *scopedAuthenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.group.Do(c.key(email, password), func() (interface{}, error) {
		return c.Authenticator.Login(shared, email, password)
	})
	if err != nil {
		return LoginResult{}, err
	}
	result := v.(LoginResult)
	result.Identity = *result.Identity.Clone()
	return result, nil
}

func (c *scopedAuthenticator) key(email, password string) string {
	sum := sha256.Sum256([]byte(password))
	return c.scope + "|" + strings.ToLower(strings.TrimSpace(email)) + "|" + hex.EncodeToString(sum[:])
}

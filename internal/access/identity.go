package access

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Role is the enumerated role tag carried by an identity.
type Role string

// Known roles. Backends may send other business roles; only RoleAdmin has
// special meaning here.
const (
	RoleAdmin         Role = "admin"
	RoleDashboardUser Role = "dashboard_user"
)

// UserID is an opaque identifier. The backend sends it either as a JSON
// number or as a string; both decode to the same textual form.
type UserID string

// UnmarshalJSON accepts numbers and strings.
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("access: user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Identity is the authenticated user's role and entitlement record.
type Identity struct {
	ID             UserID   `json:"id" validate:"required"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	Role           Role     `json:"role" validate:"required"`
	AllowedModules []string `json:"allowedModules"`
	Branch         string   `json:"branch,omitempty"`
}

// ErrInvalidIdentity is returned by Validate for unusable identities.
var ErrInvalidIdentity = errors.New("access: invalid identity")

var identityValidator = validator.New()

// Validate checks that the identity can be admitted into a session.
func (i Identity) Validate() error {
	if err := identityValidator.Struct(i); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("%w: %s is %s", ErrInvalidIdentity, strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return nil
}

// Normalize returns a copy whose AllowedModules is a deduplicated subset of
// the catalog. Keys and role are compared byte for byte, so "SALES" or
// " admin " match nothing. Keys that were dropped are returned for logging.
func (i Identity) Normalize() (Identity, []string) {
	out := i
	out.AllowedModules = make([]string, 0, len(i.AllowedModules))
	var dropped []string
	seen := make(map[string]struct{}, len(i.AllowedModules))
	for _, key := range i.AllowedModules {
		if !IsKnownModule(key) {
			dropped = append(dropped, key)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.AllowedModules = append(out.AllowedModules, key)
	}
	return out, dropped
}

// Clone returns a deep copy so callers cannot mutate shared snapshots.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.AllowedModules = append([]string(nil), i.AllowedModules...)
	return &out
}

// Allows reports raw membership of key in AllowedModules.
func (i *Identity) Allows(key string) bool {
	if i == nil {
		return false
	}
	for _, m := range i.AllowedModules {
		if m == key {
			return true
		}
	}
	return false
}

package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Permission identifiers checked by the API and the engine.
const (
	PermParcelRead      = "parcel.read"
	PermParcelWrite     = "parcel.write"
	PermParcelDelete    = "parcel.delete"
	PermIssueRead       = "issue.read"
	PermIssueWrite      = "issue.write"
	PermIssueDelete     = "issue.delete"
	PermContainerRead   = "container.read"
	PermContainerWrite  = "container.write"
	PermContainerDelete = "container.delete"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the caller an operation runs on behalf of.
type Principal struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authorizer resolves role grants from the configured role catalog.
type Authorizer struct {
	roles map[string][]string
}

func NewAuthorizer(roles map[string][]string) Authorizer {
	copied := make(map[string][]string, len(roles))
	for k, v := range roles {
		copied[k] = append([]string(nil), v...)
	}
	return Authorizer{roles: copied}
}

// Permissions returns the principal's direct grants plus those of its roles.
func (a Authorizer) Permissions(p Principal) []string {
	seen := map[string]bool{}
	var out []string
	add := func(perms []string) {
		for _, perm := range perms {
			if perm == "" || seen[perm] {
				continue
			}
			seen[perm] = true
			out = append(out, perm)
		}
	}
	add(p.Permissions)
	for _, role := range p.Roles {
		add(a.roles[role])
	}
	sort.Strings(out)
	return out
}

func (a Authorizer) Allowed(p Principal, perm string) bool {
	for _, granted := range a.Permissions(p) {
		if matches(granted, perm) {
			return true
		}
	}
	return false
}

// Require returns ForbiddenError unless the principal holds perm.
func (a Authorizer) Require(p Principal, perm string) error {
	if a.Allowed(p, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// matches supports "*" and "<prefix>.*" grants.
func matches(granted, perm string) bool {
	if granted == "*" || granted == perm {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, ".*"); ok {
		return strings.HasPrefix(perm, prefix+".")
	}
	return false
}

// Package models defines the data structures shared by the API layers.
package models

import "context"

type contextKey string

// PrincipalKey is the context key holding the authenticated *Principal.
const PrincipalKey contextKey = "principal"

// Role defines the permissions of an API caller.
type Role string

const (
	// RoleAdmin can also change settings and trigger backups.
	RoleAdmin Role = "admin"
	// RoleEditor can modify the document.
	RoleEditor Role = "editor"
	// RoleViewer can only read.
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// Allows reports whether r grants at least required.
func (r Role) Allows(required Role) bool {
	weights := map[Role]int{
		RoleViewer: 1,
		RoleEditor: 2,
		RoleAdmin:  3,
	}
	return weights[r] >= weights[required]
}

// Principal is the caller identified by an API token.
type Principal struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal extracts the authenticated caller from the context.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok
}

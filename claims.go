package accounts

import (
	"context"
	"slices"
)

const (
	ClaimSubject = "sub"
	ClaimName    = "name"
	ClaimRole    = "role"
)

// Claim is a (type, value) pair describing a user
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is the claim set of an authenticated user. Role claims may
// repeat; every other type appears once per source.
type Principal struct {
	Subject string  `json:"sub"`
	Claims  []Claim `json:"claims"`
}

// Values returns every value of claimType in order
func (p Principal) Values(claimType string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// First returns the first value of claimType
func (p Principal) First(claimType string) (string, bool) {
	for _, c := range p.Claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// Roles returns the role claim values
func (p Principal) Roles() []string {
	return p.Values(ClaimRole)
}

// HasRole checks role membership
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles(), role)
}

// Name returns the name claim value
func (p Principal) Name() string {
	name, _ := p.First(ClaimName)
	return name
}

// Filter keeps the subject plus claims whose type is in types.
func (p Principal) Filter(types ...string) Principal {
	out := Principal{Subject: p.Subject}
	for _, c := range p.Claims {
		if c.Type == ClaimSubject || slices.Contains(types, c.Type) {
			out.Claims = append(out.Claims, c)
		}
	}
	return out
}

// AssemblerOption configures a ClaimsAssembler
type AssemblerOption func(*ClaimsAssembler)

// WithRoles toggles role claims
func WithRoles(enabled bool) AssemblerOption {
	return func(a *ClaimsAssembler) {
		a.includeRoles = enabled
	}
}

// WithRoleClaims toggles role scoped claims. Only applies when roles are enabled.
func WithRoleClaims(enabled bool) AssemblerOption {
	return func(a *ClaimsAssembler) {
		a.includeRoleClaims = enabled
	}
}

// ClaimsAssembler builds the Principal of a user from the user record,
// its name claim row and its role memberships.
type ClaimsAssembler struct {
	claims            ClaimsStore
	includeRoles      bool
	includeRoleClaims bool
}

// NewClaimsAssembler returns an assembler with roles and role claims enabled
func NewClaimsAssembler(claims ClaimsStore, opts ...AssemblerOption) *ClaimsAssembler {
	a := &ClaimsAssembler{
		claims:            claims,
		includeRoles:      true,
		includeRoleClaims: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns sub, name, then for each role the role claim followed
// by that role's claims. A missing name row is created empty, so repeated
// calls never add rows.
func (a *ClaimsAssembler) Assemble(ctx context.Context, user *User) (Principal, error) {
	if user == nil {
		return Principal{}, withMessage(ErrIdentityNotFound, "cannot assemble a principal without a user")
	}

	subject := user.ID.String()
	p := Principal{
		Subject: subject,
		Claims:  []Claim{{Type: ClaimSubject, Value: subject}},
	}

	name, err := a.claims.FindOrCreateCustomClaim(ctx, user.ID, ClaimName, "")
	if err != nil {
		return Principal{}, storeError("find or create name claim", err)
	}
	p.Claims = append(p.Claims, Claim{Type: ClaimName, Value: name.ClaimValue})

	if !a.includeRoles {
		return p, nil
	}

	roles, err := a.claims.GetRoles(ctx, user.ID)
	if err != nil {
		return Principal{}, storeError("get roles", err)
	}

	for _, role := range roles {
		p.Claims = append(p.Claims, Claim{Type: ClaimRole, Value: role})
		if !a.includeRoleClaims {
			continue
		}
		rc, err := a.claims.GetRoleClaims(ctx, role)
		if err != nil {
			return Principal{}, storeError("get role claims", err)
		}
		p.Claims = append(p.Claims, rc...)
	}

	return p, nil
}

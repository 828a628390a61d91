package security

import (
	"github.com/veilarc/ragfence/internal/models"
)

// Filter is the retrieval predicate compiled from an identity. It is a pure
// value: stores interpret it (the pgvector store renders it to SQL, the
// memory store evaluates Matches directly). All clauses are conjunctive:
// every Must holds, no MustNot holds, and the ACL branch holds.
type Filter struct {
	// TenantID must equal the payload tenant. Hard isolation: no role,
	// including admin, crosses tenants.
	TenantID string

	// Role must appear in the payload's roles_allowed list.
	Role models.Role

	// ExcludeSensitive suppresses sensitive chunks. Set for every
	// non-admin identity.
	ExcludeSensitive bool

	// ACL branch inputs.
	UserID int64
	Groups []string
}

// Compile turns an identity into its retrieval predicate. It is total: it
// never fails and consults nothing beyond the identity's own fields.
func Compile(identity models.Identity) Filter {
	return Filter{
		TenantID:         identity.TenantID,
		Role:             identity.Role,
		ExcludeSensitive: !identity.IsAdmin(),
		UserID:           identity.UserID,
		Groups:           identity.Groups,
	}
}

// Matches reports whether a chunk payload is visible under the filter.
//
// The ACL branch intentionally diverges from the behavior this service
// replaced: there, a document with a non-empty allowed_users but an empty
// allowed_groups (or vice versa) was still visible to everyone, because the
// two "list is empty" escape hatches fired independently. Here the document
// is public only when both lists are empty; otherwise the identity must hold
// one of the grants (listed user, or membership in a listed group).
func (f Filter) Matches(p models.Payload) bool {
	if p.TenantID != f.TenantID {
		return false
	}
	if !containsRole(p.RolesAllowed, f.Role) {
		return false
	}
	if f.ExcludeSensitive && p.Sensitive {
		return false
	}
	return f.aclAllows(p)
}

func (f Filter) aclAllows(p models.Payload) bool {
	if len(p.AllowedUsers) == 0 && len(p.AllowedGroups) == 0 {
		return true
	}
	return containsUser(p.AllowedUsers, f.UserID) || intersects(p.AllowedGroups, f.Groups)
}

func containsRole(roles []string, role models.Role) bool {
	for _, r := range roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

func containsUser(users []int64, id int64) bool {
	for _, u := range users {
		if u == id {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

package security

import "github.com/veilarc/ragfence/internal/models"

// ResolveACLMode computes the access mode stamped on every chunk of a
// document. No allow-lists means the document is public to anyone who
// clears tenant, role, and sensitivity checks.
func ResolveACLMode(allowedUsers []int64, allowedGroups []string) models.ACLMode {
	if len(allowedUsers) == 0 && len(allowedGroups) == 0 {
		return models.ACLPublic
	}
	return models.ACLRestricted
}

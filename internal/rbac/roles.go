package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser       = "user"
	RoleFinance    = "finance"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsPrivileged reports whether a role may read or act on other users' ledger data.
func IsPrivileged(role string) bool {
	switch role {
	case RoleFinance, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

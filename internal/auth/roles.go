package auth

// Role represents a portal role issued by the identity provider.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleInstaller Role = "installer"
	RoleOfficer   Role = "officer"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleCustomer, RoleInstaller, RoleOfficer:
		return Role(value), true
	default:
		return "", false
	}
}

package auth

// Staff role constants.
const (
	RoleViewer     = "viewer"
	RoleCompliance = "compliance"
	RoleAdmin      = "admin"
)

// AllStaffRoles returns all valid staff roles.
func AllStaffRoles() []string {
	return []string{RoleViewer, RoleCompliance, RoleAdmin}
}

// ReviewRoles returns roles that may move alerts through the review state
// machine.
func ReviewRoles() []string {
	return []string{RoleCompliance, RoleAdmin}
}

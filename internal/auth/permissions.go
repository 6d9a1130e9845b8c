package auth

// Pharmacy staff roles. A user holds exactly one; tokens carry it.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleTechnician = "technician"
	RoleViewer     = "viewer"
)

// WriterRoles may change compliance state.
var WriterRoles = []string{RoleAdmin, RolePharmacist}

// KnownRole reports whether role is one of the built-in roles.
func KnownRole(role string) bool {
	switch role {
	case RoleAdmin, RolePharmacist, RoleTechnician, RoleViewer:
		return true
	}
	return false
}

package schema

// IdentityUserRoleTable represents the 'user_roles' table
type IdentityUserRoleTable struct {
	Table     string
	UserID    string
	RoleName  string
	Source    string
	IsActive  string
	CreatedAt string
}

// IdentityUserRole is the schema definition for user_roles
var IdentityUserRole = IdentityUserRoleTable{
	Table:     "user_roles",
	UserID:    "user_id",
	RoleName:  "role_name",
	Source:    "source",
	IsActive:  "is_active",
	CreatedAt: "created_at",
}

// Columns returns all standard column names
func (t IdentityUserRoleTable) Columns() []string {
	return []string{t.UserID, t.RoleName, t.Source, t.IsActive, t.CreatedAt}
}

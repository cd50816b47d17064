package schema

// IdentityUserTable represents the 'users' table
type IdentityUserTable struct {
	Table           string
	ID              string
	Email           string
	Phone           string
	Username        string
	FirstName       string
	LastName        string
	Country         string
	Gender          string
	ExternalSubject string
	IsBanned        string
	IsActivated     string
	IsApproved      string
	CreatedAt       string
	UpdatedAt       string
}

// IdentityUser is the schema definition for users
var IdentityUser = IdentityUserTable{
	Table:           "users",
	ID:              "id",
	Email:           "email",
	Phone:           "phone",
	Username:        "username",
	FirstName:       "first_name",
	LastName:        "last_name",
	Country:         "country",
	Gender:          "gender",
	ExternalSubject: "external_subject",
	IsBanned:        "is_banned",
	IsActivated:     "is_activated",
	IsApproved:      "is_approved",
	CreatedAt:       "created_at",
	UpdatedAt:       "updated_at",
}

// Columns returns all standard column names
func (t IdentityUserTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.Phone, t.Username, t.FirstName, t.LastName, t.Country, t.Gender,
		t.ExternalSubject, t.IsBanned, t.IsActivated, t.IsApproved, t.CreatedAt, t.UpdatedAt,
	}
}

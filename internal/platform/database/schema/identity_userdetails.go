package schema

// IdentityUserDetailsTable represents the 'user_details' table
type IdentityUserDetailsTable struct {
	Table          string
	UserID         string
	SessionID      string
	FirstName      string
	LastName       string
	Age            string
	Gender         string
	Country        string
	City           string
	Timezone       string
	Language       string
	RegistrationIP string
	CreatedAt      string
	UpdatedAt      string
}

// IdentityUserDetails is the schema definition for user_details
var IdentityUserDetails = IdentityUserDetailsTable{
	Table:          "user_details",
	UserID:         "user_id",
	SessionID:      "session_id",
	FirstName:      "first_name",
	LastName:       "last_name",
	Age:            "age",
	Gender:         "gender",
	Country:        "country",
	City:           "city",
	Timezone:       "timezone",
	Language:       "language",
	RegistrationIP: "registration_ip",
	CreatedAt:      "created_at",
	UpdatedAt:      "updated_at",
}

// Columns returns all standard column names
func (t IdentityUserDetailsTable) Columns() []string {
	return []string{
		t.UserID, t.SessionID, t.FirstName, t.LastName, t.Age, t.Gender, t.Country, t.City,
		t.Timezone, t.Language, t.RegistrationIP, t.CreatedAt, t.UpdatedAt,
	}
}

package schema

// AuthOTPCodeTable represents the 'otp_codes' table
type AuthOTPCodeTable struct {
	Table        string
	ID           string
	SessionID    string
	UserID       string
	Channel      string
	CodeHash     string
	Destination  string
	Provider     string
	ProviderRef  string
	ExpiresAt    string
	IsUsed       string
	AttemptCount string
	VerifiedAt   string
	CreatedAt    string
}

// AuthOTPCode is the schema definition for otp_codes
var AuthOTPCode = AuthOTPCodeTable{
	Table:        "otp_codes",
	ID:           "id",
	SessionID:    "session_id",
	UserID:       "user_id",
	Channel:      "channel",
	CodeHash:     "code_hash",
	Destination:  "destination",
	Provider:     "provider",
	ProviderRef:  "provider_ref",
	ExpiresAt:    "expires_at",
	IsUsed:       "is_used",
	AttemptCount: "attempt_count",
	VerifiedAt:   "verified_at",
	CreatedAt:    "created_at",
}

// Columns returns all standard column names
func (t AuthOTPCodeTable) Columns() []string {
	return []string{
		t.ID, t.SessionID, t.UserID, t.Channel, t.CodeHash, t.Destination, t.Provider, t.ProviderRef,
		t.ExpiresAt, t.IsUsed, t.AttemptCount, t.VerifiedAt, t.CreatedAt,
	}
}

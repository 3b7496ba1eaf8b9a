package domain

import "time"

type SessionPurpose string

const (
	PurposeLogin    SessionPurpose = "login"
	PurposeRecovery SessionPurpose = "recovery"
)

// SessionToken is one row of the session ledger. Rows are never deleted and
// IsValid only goes from true to false.
type SessionToken struct {
	ID        int64          `db:"id" json:"id"`
	Token     string         `db:"token" json:"-"`
	UserID    string         `db:"user_id" json:"userId"`
	UserAgent string         `db:"user_agent" json:"userAgent"`
	Purpose   SessionPurpose `db:"purpose" json:"purpose"`
	IsValid   bool           `db:"is_valid" json:"isValid"`
	ExpiresAt *time.Time     `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// Active reports whether the session can still authenticate a request at now.
func (s *SessionToken) Active(now time.Time) bool {
	if !s.IsValid {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// Identity is what authenticated requests carry downstream.
type Identity struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Premium bool   `json:"premium"`
	Token   string `json:"-"`
	// Purpose is the ledger purpose of Token. Recovery tokens only open the
	// recovery endpoints.
	Purpose SessionPurpose `json:"-"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

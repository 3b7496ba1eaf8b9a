package domain

const (
	AggregateUser = "User"

	EventUserRegistered        = "UserRegistered"
	EventUserActivated         = "UserActivated"
	EventUserLoggedIn          = "UserLoggedIn"
	EventUserRecoveryRequested = "UserRecoveryRequested"
	EventUserPasswordReset     = "UserPasswordReset"
)

// Event payloads never carry codes, tokens or password hashes.

type UserRegisteredPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
}

type UserActivatedPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
}

type UserLoggedInPayload struct {
	UserID    string `json:"user_id"`
	UserAgent string `json:"user_agent"`
}

type UserRecoveryRequestedPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type UserPasswordResetPayload struct {
	UserID              string `json:"user_id"`
	Email               string `json:"email"`
	InvalidatedSessions int    `json:"invalidated_sessions"`
}

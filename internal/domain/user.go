package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// RecoveryState tracks one in-flight password recovery.
type RecoveryState string

const (
	RecoveryNone       RecoveryState = "none"
	RecoveryCodeIssued RecoveryState = "code_issued"
	RecoveryVerified   RecoveryState = "verified"
)

type User struct {
	ID             string        `db:"id" json:"id"`
	UserName       string        `db:"user_name" json:"userName"`
	Email          string        `db:"email" json:"email"`
	PasswordHash   *string       `db:"password_hash" json:"-"`
	IsConfirmed    bool          `db:"is_confirmed" json:"isConfirmed"`
	ActivationCode *string       `db:"activation_code" json:"-"`
	ForgetCode     *string       `db:"forget_code" json:"-"`
	RecoveryState  RecoveryState `db:"recovery_state" json:"-"`
	Status         Status        `db:"status" json:"status"`
	Role           Role          `db:"role" json:"role"`
	IsPremium      bool          `db:"is_premium" json:"isPremium"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// HasPassword is false for accounts created through a third-party provider.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) HasPendingRecovery() bool {
	return u.ForgetCode != nil
}

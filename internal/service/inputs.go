package service

import "github.com/fastplat/auth/internal/domain"

type RegisterInput struct {
	UserName string `json:"userName" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"-"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type RecoveryResult struct {
	Token string `json:"token"`
}

type UserPage struct {
	Users []*domain.User `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

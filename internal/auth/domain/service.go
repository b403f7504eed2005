package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Authenticated, error)
	ChangePassword(ctx context.Context, req ChangePasswordRequest) error
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResult struct {
	RawToken               string
	ExpiresAt              time.Time
	SessionID              snowflake.ID
	UserID                 snowflake.ID
	RequiresPasswordChange bool
}

// Authenticated is a live session together with its user.
type Authenticated struct {
	Session *Session
	User    *userdomain.User
}

type ChangePasswordRequest struct {
	UserID          snowflake.ID `json:"-"`
	SessionID       snowflake.ID `json:"-"`
	CurrentPassword string       `json:"currentPassword"`
	NewPassword     string       `json:"newPassword"`
}

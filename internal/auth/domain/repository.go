package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Touch(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	Revoke(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
	// RevokeOthers revokes every live session of the user except keep.
	RevokeOthers(ctx context.Context, userID, keep snowflake.ID, revokedAt time.Time) error
}

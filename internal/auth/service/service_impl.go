package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/auth/domain"
	"github.com/smallbiznis/backoffice/internal/auth/password"
	"github.com/smallbiznis/backoffice/internal/clock"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	SessionTTL        = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	UserRepo    userdomain.Repository
	SessionRepo domain.SessionRepository
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	userRepo    userdomain.Repository
	sessionRepo domain.SessionRepository
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		userRepo:    p.UserRepo,
		sessionRepo: p.SessionRepo,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		s.log.Info("login rejected", zap.String("reason", "invalid_credentials"))
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:         s.genID.Generate(),
		UserID:     user.ID,
		TokenHash:  hashToken(rawToken),
		UserAgent:  strings.TrimSpace(req.UserAgent),
		IPAddress:  strings.TrimSpace(req.IPAddress),
		ExpiresAt:  now.Add(SessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		RawToken:               rawToken,
		ExpiresAt:              session.ExpiresAt,
		SessionID:              session.ID,
		UserID:                 user.ID,
		RequiresPasswordChange: user.RequiresPasswordChange,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}
	session, err := s.sessionRepo.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrInvalidSession
	}
	return s.sessionRepo.Revoke(ctx, session.ID, s.clock.Now())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Authenticated, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrInvalidSession
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	user, err := s.userRepo.FindByID(ctx, s.db, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidSession
	}

	if err := s.sessionRepo.Touch(ctx, session.ID, now); err != nil {
		s.log.Warn("failed to touch session", zap.String("session_id", session.ID.String()), zap.Error(err))
	}
	return &domain.Authenticated{Session: session, User: user}, nil
}

// ChangePassword rotates the password, clears the forced-change flag and
// revokes the user's other sessions.
func (s *Service) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	user, err := s.userRepo.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrInvalidSession
	}
	if !password.Verify(req.CurrentPassword, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if err := password.Validate(req.NewPassword); err != nil {
		return domain.ErrInvalidPassword
	}
	if req.NewPassword == req.CurrentPassword {
		return domain.ErrPasswordUnchanged
	}

	hashed, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.userRepo.UpdatePassword(ctx, s.db, user.ID, hashed, now); err != nil {
		return err
	}
	if err := s.sessionRepo.RevokeOthers(ctx, user.ID, req.SessionID, now); err != nil {
		return err
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			Action:     "user.password_changed",
			TargetType: "user",
			TargetID:   user.ID.String(),
			Metadata:   map[string]any{"was_required": user.RequiresPasswordChange},
		})
	}
	return nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

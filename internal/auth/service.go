package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/shared"
)

// AuditPort records account changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, audit AuditPort) *Service {
	return &Service{repo: repo, tokens: tokens, audit: audit, now: time.Now}
}

// NormalizeUsername trims and case-folds a username so lookups are case-insensitive.
func NormalizeUsername(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Authenticate validates username/password credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Session, error) {
	user, err := s.repo.FindByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username string
	Password string
	Role     string
	ActorID  uuid.UUID
}

// Register creates a user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	username := NormalizeUsername(input.Username)
	if username == "" {
		return User{}, fmt.Errorf("auth: username required: %w", httpx.ErrValidation)
	}
	if len(input.Password) < 6 {
		return User{}, fmt.Errorf("auth: password must be at least 6 characters: %w", httpx.ErrValidation)
	}
	role, err := rbac.ParseRole(input.Role)
	if err != nil {
		return User{}, err
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user := User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, input.ActorID, "USER_REGISTER", user.ID, map[string]any{"username": user.Username, "role": user.Role})
	return user, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// DeleteUser removes an account other than the caller's own.
func (s *Service) DeleteUser(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_DELETE", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, userID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor,
		Action:    action,
		Entity:    "user",
		EntityID:  userID.String(),
		Details:   meta,
		IPAddress: shared.ClientIPFromContext(ctx),
		At:        s.now(),
	})
}

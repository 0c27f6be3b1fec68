package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameserver/internal/dependencies/clock"
	"github.com/mcoot/gameserver/internal/dependencies/random"
	"github.com/mcoot/gameserver/internal/ids"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNameRegistered     = errors.New("name belongs to a registered user")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrPasswordTooLong    = errors.New("password too long")
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// Config holds configuration for the auth service
type Config struct {
	BcryptCost      int
	SessionIDLength int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		BcryptCost:      bcrypt.DefaultCost,
		SessionIDLength: 8,
	}
}

// Resumed is the durable state restored by ResumeSession
type Resumed struct {
	Session *model.Session
	IsHost  bool
	Room    model.RoomID // empty when the user is in no room
}

// Service handles credentials and durable sessions
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	ids     *ids.Generator
	cost    int
	logger  *slog.Logger
}

// New creates a new auth Service
func New(storage storage.Storage, clock clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	if cfg.SessionIDLength == 0 {
		cfg.SessionIDLength = defaults.SessionIDLength
	}
	return &Service{
		storage: storage,
		clock:   clock,
		ids:     ids.NewGenerator(rnd, cfg.SessionIDLength),
		cost:    cfg.BcryptCost,
		logger:  logger.With("component", "auth"),
	}
}

// Register stores a new credential with the REGISTERED and PLAYER roles.
// It does not start a session.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	cred := &model.Credential{
		Username:     username,
		PasswordHash: string(hash),
		Role:         model.ToStored(model.CapRegistered | model.CapPlayer),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.CreateCredential(ctx, cred); err != nil {
		return err
	}

	s.logger.Info("user registered", "username", username)
	return nil
}

// Login verifies a password and returns the user's stored capabilities
func (s *Service) Login(ctx context.Context, username, password string) (model.Capability, error) {
	cred, err := s.storage.GetCredential(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return model.FromStored(cred.Role), nil
}

// LoginGuest checks that a guest name does not impersonate a registered user
func (s *Service) LoginGuest(ctx context.Context, username string) error {
	exists, err := s.storage.CredentialExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return ErrNameRegistered
	}
	return nil
}

// StartSession upserts the durable session for an authenticated client.
// An empty token is replaced by a freshly generated unique one.
func (s *Service) StartSession(ctx context.Context, token, username string) (*model.Session, error) {
	if token == "" {
		generated, err := s.ids.Generate(ctx, s.storage.SessionExists)
		if err != nil {
			return nil, err
		}
		token = generated
	}

	session, err := s.storage.UpsertSession(ctx, token, username, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("session started", "username", username, "user_id", session.UserID)
	return session, nil
}

// ResumeSession looks up a session token and returns its durable state
func (s *Service) ResumeSession(ctx context.Context, token string) (*Resumed, error) {
	session, err := s.storage.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	if err := s.storage.TouchSession(ctx, token, s.clock.Now()); err != nil {
		return nil, err
	}

	room, err := s.storage.RoomOfUser(ctx, session.UserID)
	if err != nil && !errors.Is(err, model.ErrNotInRoom) {
		return nil, err
	}

	hosts, err := s.storage.IsHost(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	// Hosting only counts for the room the user is still a member of
	isHost := false
	if hosts && room != "" {
		record, err := s.storage.GetRoom(ctx, room)
		switch {
		case errors.Is(err, model.ErrRoomNotFound):
			room = ""
		case err != nil:
			return nil, err
		default:
			isHost = record.HostID == session.UserID
		}
	}

	return &Resumed{Session: session, IsHost: isHost, Room: room}, nil
}

// EndSession durably removes a user's room membership and session
func (s *Service) EndSession(ctx context.Context, userID model.UserID, token string) error {
	return errors.Join(
		s.storage.RemoveMember(ctx, userID),
		s.storage.DeleteSession(ctx, token),
	)
}

// Touch refreshes a session's last access time
func (s *Service) Touch(ctx context.Context, token string) error {
	return s.storage.TouchSession(ctx, token, s.clock.Now())
}

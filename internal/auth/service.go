package auth

import (
	"context"
	"errors"
	"time"

	"github.com/pocketledger/pocketledger/internal/config"
	"github.com/pocketledger/pocketledger/internal/identity"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// ErrInvalidToken covers malformed, expired, revoked and mistyped tokens.
var ErrInvalidToken = errors.New("invalid token")

// Service issues and verifies HS256 token pairs. Bumping a user's token
// version revokes every token issued before.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds a token service over the identity repository.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is what a successful login or registration returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims is what a verified access token asserts.
type Claims struct {
	UserID       string
	TokenVersion int
}

// Login issues a token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user.ID, user.TokenVersion, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user.ID, user.TokenVersion, tokenRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(userID string, version int, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := map[string]any{
		"sub": userID,
		"ver": version,
		"typ": typ,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return SignHS256(claims, []byte(secret))
}

// Verify checks an access token against the user's current token version.
func (s *Service) Verify(ctx context.Context, accessToken string) (Claims, error) {
	return s.verify(ctx, accessToken, tokenAccess, s.cfg.JWTSecret)
}

func (s *Service) verify(ctx context.Context, token, typ, secret string) (Claims, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret), s.now())
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if got, _ := claims["typ"].(string); got != typ {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	verFloat, _ := claims["ver"].(float64)
	ver := int(verFloat)

	user, err := s.idRepo.FindByID(ctx, sub)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Claims{}, ErrInvalidToken
		}
		return Claims{}, err
	}
	if user.TokenVersion != ver {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: user.ID, TokenVersion: ver}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.verify(ctx, refreshToken, tokenRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(claims.UserID, claims.TokenVersion, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

// internal/auth/service.go

package auth

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/go-redis/redis/v8"
    "github.com/google/uuid"
    "golang.org/x/crypto/bcrypt"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/common/utils"
)

var (
    ErrInvalidCredentials = errors.New("invalid email or password")
    ErrEmailTaken         = errors.New("email already registered")
    ErrUsernameTaken      = errors.New("username already taken")
    ErrInvalidToken       = errors.New("invalid or expired token")
)

// Service handles registration, login and token validation. The same
// validation path backs the REST middleware and the websocket authenticate
// event, so a credential means the same identity on both surfaces.
type Service interface {
    Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
    Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
    RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
    Logout(ctx context.Context, token string) error
    ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
    ResolveCredential(ctx context.Context, credential string) (int64, error)
}

// Config carries the token parameters the service needs
type Config struct {
    JWTSecret          string
    BCryptCost         int
    AccessTokenExpiry  time.Duration
    RefreshTokenExpiry time.Duration
}

type AuthService struct {
    repo  Repository
    redis *redis.Client
    cfg   Config
}

// NewService creates the auth service. redisClient may be nil; session
// revocation is then disabled and tokens are trusted until expiry.
func NewService(repo Repository, redisClient *redis.Client, cfg Config) *AuthService {
    if cfg.BCryptCost == 0 {
        cfg.BCryptCost = bcrypt.DefaultCost
    }
    return &AuthService{
        repo:  repo,
        redis: redisClient,
        cfg:   cfg,
    }
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
    if _, err := s.repo.GetUserByEmail(ctx, req.Email); err == nil {
        return nil, ErrEmailTaken
    }
    if _, err := s.repo.GetUserByUsername(ctx, req.Username); err == nil {
        return nil, ErrUsernameTaken
    }

    hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BCryptCost)
    if err != nil {
        return nil, fmt.Errorf("failed to hash password: %w", err)
    }

    user := &User{
        Username:     req.Username,
        Email:        req.Email,
        PasswordHash: string(hash),
        CreatedAt:    time.Now(),
    }
    if err := s.repo.CreateUser(ctx, user); err != nil {
        return nil, fmt.Errorf("failed to create user: %w", err)
    }

    return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
    user, err := s.repo.GetUserByEmail(ctx, req.Email)
    if err != nil {
        return nil, ErrInvalidCredentials
    }

    if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
        return nil, ErrInvalidCredentials
    }

    return s.issueTokens(ctx, user)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
    claims, err := s.ValidateToken(ctx, refreshToken)
    if err != nil {
        return nil, ErrInvalidToken
    }
    if claims.Type != "refresh" {
        return nil, ErrInvalidToken
    }

    user, err := s.repo.GetUserByID(ctx, claims.UserID)
    if err != nil {
        return nil, ErrInvalidToken
    }

    // The old refresh session is revoked; one refresh token, one use
    s.revokeSession(ctx, claims.TokenID)

    return s.issueTokens(ctx, user)
}

// Logout revokes the session behind the presented token
func (s *AuthService) Logout(ctx context.Context, token string) error {
    claims, err := s.ValidateToken(ctx, token)
    if err != nil {
        return ErrInvalidToken
    }
    s.revokeSession(ctx, claims.TokenID)
    return nil
}

// ValidateToken verifies the signature, expiry and the session's revocation
// state
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
    claims, err := utils.ValidateJWT(token, s.cfg.JWTSecret)
    if err != nil {
        return nil, ErrInvalidToken
    }
    if claims.ExpiresAt > 0 && time.Now().Unix() > claims.ExpiresAt {
        return nil, ErrInvalidToken
    }

    if s.redis != nil && claims.TokenID != "" {
        exists, err := s.redis.Exists(ctx, sessionKey(claims.TokenID)).Result()
        if err == nil && exists == 0 {
            return nil, ErrInvalidToken
        }
    }

    return claims, nil
}

// ResolveCredential maps an access token to a user identity. This is the
// shared entry point for the REST middleware and the realtime authenticate
// event.
func (s *AuthService) ResolveCredential(ctx context.Context, credential string) (int64, error) {
    claims, err := s.ValidateToken(ctx, credential)
    if err != nil {
        return 0, err
    }
    if claims.Type != "access" {
        return 0, ErrInvalidToken
    }
    return claims.UserID, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *User) (*AuthResponse, error) {
    now := time.Now()

    accessID := uuid.New().String()
    accessToken, err := utils.GenerateJWT(&utils.JWTClaims{
        UserID:    user.ID,
        Username:  user.Username,
        Type:      "access",
        TokenID:   accessID,
        ExpiresAt: now.Add(s.cfg.AccessTokenExpiry).Unix(),
        IssuedAt:  now.Unix(),
        Issuer:    "wardrobe-nearby",
    }, s.cfg.JWTSecret)
    if err != nil {
        return nil, fmt.Errorf("failed to generate access token: %w", err)
    }

    refreshID := uuid.New().String()
    refreshToken, err := utils.GenerateJWT(&utils.JWTClaims{
        UserID:    user.ID,
        Username:  user.Username,
        Type:      "refresh",
        TokenID:   refreshID,
        ExpiresAt: now.Add(s.cfg.RefreshTokenExpiry).Unix(),
        IssuedAt:  now.Unix(),
        Issuer:    "wardrobe-nearby",
    }, s.cfg.JWTSecret)
    if err != nil {
        return nil, fmt.Errorf("failed to generate refresh token: %w", err)
    }

    s.trackSession(ctx, accessID, user.ID, s.cfg.AccessTokenExpiry)
    s.trackSession(ctx, refreshID, user.ID, s.cfg.RefreshTokenExpiry)

    return &AuthResponse{
        User:         user,
        AccessToken:  accessToken,
        RefreshToken: refreshToken,
        ExpiresIn:    int64(s.cfg.AccessTokenExpiry.Seconds()),
    }, nil
}

func (s *AuthService) trackSession(ctx context.Context, tokenID string, userID int64, ttl time.Duration) {
    if s.redis == nil {
        return
    }
    s.redis.Set(ctx, sessionKey(tokenID), userID, ttl)
}

func (s *AuthService) revokeSession(ctx context.Context, tokenID string) {
    if s.redis == nil || tokenID == "" {
        return
    }
    s.redis.Del(ctx, sessionKey(tokenID))
}

func sessionKey(tokenID string) string {
    return "auth:session:" + tokenID
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/pkg/models"
)

const tokenIssuer = "recengine"

var ErrSessionRevoked = errors.New("session not found or revoked")

// AuthService issues and validates HS256 bearer tokens. With a Redis client,
// issued tokens are tracked as sessions and can be revoked; without one, any
// correctly signed unexpired token is accepted.
type AuthService struct {
	config      config.AuthConfig
	logger      *logrus.Logger
	redisClient *redis.Client
	jwtSecret   []byte
	now         func() time.Time
}

func NewAuthService(cfg config.AuthConfig, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.JWTSecret),
		now:         time.Now,
	}
}

func sessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("session:%s", userID.String())
}

func (s *AuthService) GenerateToken(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	now := s.now()
	claims := &models.JWTClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, sessionKey(userID), tokenString, s.config.TokenTTL).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to store session in Redis")
		}
	}

	return tokenString, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.redisClient != nil {
		exists, err := s.redisClient.Exists(ctx, sessionKey(claims.UserID)).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check session in Redis")
		} else if exists == 0 {
			return nil, ErrSessionRevoked
		}
	}

	return claims, nil
}

func (s *AuthService) RevokeToken(ctx context.Context, userID uuid.UUID) error {
	if s.redisClient == nil {
		return nil
	}
	if err := s.redisClient.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

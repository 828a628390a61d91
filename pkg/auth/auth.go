package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/internal/types"
)

var (
	ErrInvalidCredentials = errors.New("bad username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

type Config struct {
	Secret   string
	TokenTTL time.Duration
}

// Service issues and verifies HS256 bearer tokens carrying the identity
// fields the security filter compiles from.
type Service struct {
	users  types.UserStore
	config Config
}

func NewService(users types.UserStore, config Config) *Service {
	if config.TokenTTL == 0 {
		config.TokenTTL = 240 * time.Minute
	}
	return &Service{users: users, config: config}
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil || user.Password != password {
		return "", ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"user_id":   user.UserID,
		"tenant_id": user.TenantID,
		"role":      string(user.Role),
		"groups":    user.Groups,
		"exp":       time.Now().Add(s.config.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a bearer token into the Identity record the rest of the
// system consumes. Everything downstream trusts these fields, so any
// parse or signature problem rejects the token outright.
func (s *Service) Verify(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	tenantID, ok := claims["tenant_id"].(string)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	role, ok := claims["role"].(string)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}

	var groups []string
	if raw, ok := claims["groups"].([]interface{}); ok {
		for _, g := range raw {
			if gs, ok := g.(string); ok {
				groups = append(groups, gs)
			}
		}
	}

	return models.Identity{
		UserID:   int64(userID),
		TenantID: tenantID,
		Role:     models.Role(role),
		Groups:   groups,
	}, nil
}

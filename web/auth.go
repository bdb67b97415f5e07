package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"trypie/config"
	"trypie/ledger"
)

const (
	userIDKey = "user_id"
	// DevUserHeader names the caller when no JWT secret is configured in dev mode.
	DevUserHeader = "X-User-ID"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// TokenManager signs and checks HS256 tokens. The subject claim is the user id.
type TokenManager struct {
	secretKey []byte
}

func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{secretKey: []byte(secretKey)}
}

func (m *TokenManager) Generate(user ledger.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(user),
		Issuer:    config.AppName,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (m *TokenManager) Validate(tokenString string) (ledger.UserID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return ledger.UserID(claims.Subject), nil
}

// bearerToken reads the Authorization header. Browsers cannot set headers on websocket
// upgrades, so the token query parameter is accepted as well.
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// RequireAuth stores the caller's user id on the gin context. A nil manager trusts
// DevUserHeader and must only be used in dev mode.
func RequireAuth(m *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			user := c.GetHeader(DevUserHeader)
			if user == "" {
				Unauthorized(c, DevUserHeader+" header required")
				return
			}
			c.Set(userIDKey, ledger.UserID(user))
			c.Next()
			return
		}

		token, err := bearerToken(c)
		if err != nil {
			Unauthorized(c, err.Error())
			return
		}
		user, err := m.Validate(token)
		if err != nil {
			Unauthorized(c, ErrInvalidToken.Error())
			return
		}
		c.Set(userIDKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by RequireAuth.
func CurrentUser(c *gin.Context) ledger.UserID {
	user, _ := c.Get(userIDKey)
	id, _ := user.(ledger.UserID)
	return id
}

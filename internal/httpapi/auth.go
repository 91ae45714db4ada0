package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "stoqplus"

var errInvalidToken = errors.New("invalid or expired token")

// AuthManager signs and verifies session tokens and hashes passwords.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	StoreID string `json:"storeId,omitempty"`
}

// TokenClaims is what a verified token says about its bearer. Role and store
// are informational; authorization reloads the membership.
type TokenClaims struct {
	UserID  string
	Role    string
	StoreID string
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), tokenTTL: tokenTTL, now: time.Now}
}

func (a *AuthManager) IssueToken(userID string, role string, storeID string) (string, error) {
	now := a.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(a.tokenTTL)),
			Issuer:    tokenIssuer,
		},
		UserID:  userID,
		Role:    role,
		StoreID: storeID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseToken(tokenStr string) (TokenClaims, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return TokenClaims{}, errInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return TokenClaims{}, errInvalidToken
	}
	return TokenClaims{UserID: userID, Role: claims.Role, StoreID: claims.StoreID}, nil
}

func (a *AuthManager) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (a *AuthManager) ComparePassword(hash string, password string) bool {
	if hash == "" || strings.TrimSpace(password) == "" || !isPasswordHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned by Verify for a malformed, forged or expired token.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// devUsers are used when KITCHEN_USERS is unset so the app works out of the box locally.
var devUsers = map[string]string{
	"demo":     "kitchen",
	"designer": "renovate",
}

// Claims are the JWT claims of a session.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Authenticator checks credentials against a fixed user list and issues HS256 tokens.
type Authenticator struct {
	secret []byte
	users  map[string]string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. A ttl <= 0 uses DefaultTokenTTL.
func NewAuthenticator(secret []byte, users map[string]string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{secret: secret, users: users, ttl: ttl, now: time.Now}
}

// NewAuthenticatorFromEnv reads KITCHEN_JWT_SECRET and KITCHEN_USERS ("user:pass,user2:pass2").
// Without a secret a random one is generated, so tokens do not survive a restart.
func NewAuthenticatorFromEnv() (*Authenticator, error) {
	secret := []byte(os.Getenv("KITCHEN_JWT_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate JWT secret: %w", err)
		}
		log.Warn().Msg("KITCHEN_JWT_SECRET not set, using an ephemeral secret")
	}

	users := devUsers
	if raw := os.Getenv("KITCHEN_USERS"); raw != "" {
		parsed, err := ParseUsers(raw)
		if err != nil {
			return nil, err
		}
		users = parsed
	} else {
		log.Warn().Msg("KITCHEN_USERS not set, using built-in development accounts")
	}
	return NewAuthenticator(secret, users, DefaultTokenTTL), nil
}

// ParseUsers parses a comma-separated user:password list.
func ParseUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, pass, ok := strings.Cut(pair, ":")
		if !ok || name == "" || pass == "" {
			return nil, fmt.Errorf("invalid KITCHEN_USERS entry %q: want user:password", pair)
		}
		users[name] = pass
	}
	if len(users) == 0 {
		return nil, errors.New("KITCHEN_USERS contains no users")
	}
	return users, nil
}

// Login checks the credentials and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, error) {
	want, ok := a.users[username]
	match := subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1
	if !ok || !match {
		return "", ErrInvalidCredentials
	}

	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	log.Info().Str("user", username).Msg("Session issued")
	return signed, nil
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

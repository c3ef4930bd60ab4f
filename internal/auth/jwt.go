package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AnyAgent in the agents claim grants access to every agent.
const AnyAgent = "*"

// AccessClaims identify a caller and the agents whose memory it may touch.
type AccessClaims struct {
	Agents []string `json:"agents"`
	jwt.RegisteredClaims
}

// Allows reports whether the token covers agentID.
func (c *AccessClaims) Allows(agentID string) bool {
	return slices.Contains(c.Agents, AnyAgent) || slices.Contains(c.Agents, agentID)
}

// JWTManager signs and verifies HS256 access tokens.
type JWTManager struct {
	secret []byte
	issuer string
}

func NewJWTManager(secret, issuer string) *JWTManager {
	if issuer == "" {
		issuer = "agentmemory"
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer}
}

// Generate issues a token for subject covering agents, valid for ttl.
func (m *JWTManager) Generate(subject string, agents []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Agents: agents,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

func (m *JWTManager) ValidateAccessToken(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return claims, nil
}

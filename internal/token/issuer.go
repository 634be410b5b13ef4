package token

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crm-backend/internal/config"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims carried by both access and refresh tokens. Typ distinguishes the
// two so a refresh token can never be presented as an access token.
type Claims struct {
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	OrganizationID string   `json:"org_id,omitempty"`
	SessionID      string   `json:"sid"`
	Typ            string   `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs RS256 session tokens and verifies them against the public key.
type Issuer struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewIssuer(cfg *config.Config) (*Issuer, error) {
	privPEM, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT private key: %w", err)
	}

	pubPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}

	return &Issuer{
		privateKey:      privateKey,
		publicKey:       publicKey,
		issuer:          cfg.JWT.Issuer,
		accessTokenTTL:  cfg.JWT.AccessTokenTTL,
		refreshTokenTTL: cfg.JWT.RefreshTokenTTL,
	}, nil
}

// NewIssuerFromKeys wires an issuer from in-memory keys. Used by tests.
func NewIssuerFromKeys(privateKey *rsa.PrivateKey, issuer string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		privateKey:      privateKey,
		publicKey:       &privateKey.PublicKey,
		issuer:          issuer,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

// GeneratePair issues an access and refresh token bound to the session.
func (i *Issuer) GeneratePair(userID, email string, roles []string, organizationID, sessionID string) (*TokenPair, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(i.accessTokenTTL)
	refreshExpiry := now.Add(i.refreshTokenTTL)

	accessToken, err := i.sign(Claims{
		Email:          email,
		Roles:          roles,
		OrganizationID: organizationID,
		SessionID:      sessionID,
		Typ:            "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			ID:        uuid.New().String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := i.sign(Claims{
		SessionID: sessionID,
		Typ:       "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
			ID:        uuid.New().String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (i *Issuer) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
}

// Verify parses and validates a token, checking signature, expiry and typ.
func (i *Issuer) Verify(tokenString, expectedTyp string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Typ != expectedTyp {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Hash returns the hex SHA-256 digest of a token. Only digests are ever
// persisted; raw tokens never touch storage.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

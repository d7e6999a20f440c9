package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JWTManager verifies HS256 tokens minted by the account service. IssueToken
// exists for local tooling and tests.
type JWTManager struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	nowFunc    func() time.Time
}

func NewJWTManager(secret, issuer, audience string, ttl time.Duration) (*JWTManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTManager{
		signingKey: []byte(secret),
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		nowFunc:    time.Now,
	}, nil
}

type Claims struct {
	ID        string `json:"jti"`
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	NotBefore int64  `json:"nbf"`
	ExpiresAt int64  `json:"exp"`
	Email     string `json:"email,omitempty"`
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

var hs256Header = tokenHeader{Algorithm: "HS256", Type: "JWT"}

func (m *JWTManager) IssueToken(id Identity) (string, error) {
	now := m.nowFunc()
	return m.mint(Claims{
		ID:        uuid.NewString(),
		Issuer:    m.issuer,
		Subject:   id.UserID,
		Audience:  m.audience,
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(m.ttl).Unix(),
		Email:     id.Email,
	})
}

func (m *JWTManager) mint(c Claims) (string, error) {
	var b strings.Builder
	for i, part := range []interface{}{hs256Header, c} {
		raw, err := json.Marshal(part)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(b64.EncodeToString(raw))
	}
	signed := b.String()
	return signed + "." + m.mac(signed), nil
}

// Verify checks signature, issuer, audience and validity window. Every
// failure wraps ErrUnauthorized.
func (m *JWTManager) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := m.parse(token)
	if err == nil {
		err = m.checkClaims(claims)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

var b64 = base64.RawURLEncoding

// parse splits the compact form and authenticates it before decoding claims.
func (m *JWTManager) parse(token string) (Claims, error) {
	var c Claims
	dot := strings.LastIndexByte(token, '.')
	if token == "" || dot < 0 || strings.Count(token, ".") != 2 {
		return c, errors.New("malformed token")
	}
	signed, sig := token[:dot], token[dot+1:]
	headerPart, claimsPart, _ := strings.Cut(signed, ".")

	var h tokenHeader
	if err := unmarshalPart(headerPart, &h); err != nil {
		return c, fmt.Errorf("header: %w", err)
	}
	if h.Algorithm != hs256Header.Algorithm {
		return c, fmt.Errorf("alg %q not accepted", h.Algorithm)
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(m.mac(signed))) != 1 {
		return c, errors.New("bad signature")
	}
	if err := unmarshalPart(claimsPart, &c); err != nil {
		return c, fmt.Errorf("claims: %w", err)
	}
	return c, nil
}

func (m *JWTManager) checkClaims(c Claims) error {
	switch now := m.nowFunc().Unix(); {
	case c.Subject == "":
		return errors.New("no subject")
	case c.Issuer != m.issuer:
		return fmt.Errorf("issuer %q", c.Issuer)
	case c.Audience != m.audience:
		return fmt.Errorf("audience %q", c.Audience)
	case now < c.NotBefore:
		return errors.New("used before nbf")
	case now > c.ExpiresAt:
		return errors.New("expired")
	}
	return nil
}

func unmarshalPart(part string, dst interface{}) error {
	raw, err := b64.DecodeString(part)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (m *JWTManager) mac(signed string) string {
	h := hmac.New(sha256.New, m.signingKey)
	h.Write([]byte(signed))
	return b64.EncodeToString(h.Sum(nil))
}

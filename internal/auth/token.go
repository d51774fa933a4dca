// Package auth verifies the identity tokens collaborators attach to HTTP
// and websocket calls. Tokens are HMAC-SHA256 signed; the engine verifies
// them but issuing sessions belongs to the account service (Mint exists for
// operational tooling and tests).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles recognised by the engine.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleBot   = "bot"
)

// ErrInvalidToken is returned for malformed, tampered or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified caller of a request or connection.
type Identity struct {
	Subject uuid.UUID
	Role    string
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Verifier validates tokens of the form "subject:role:expiry:signature".
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier around the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) sign(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Mint issues a token for the subject with the given role and lifetime.
func (v *Verifier) Mint(subject uuid.UUID, role string, ttl time.Duration) string {
	payload := fmt.Sprintf("%s:%s:%d", subject, role, time.Now().Add(ttl).Unix())
	return payload + ":" + v.sign(payload)
}

// Verify checks the token's signature and expiry and returns the identity.
func (v *Verifier) Verify(token string, now time.Time) (Identity, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return Identity{}, ErrInvalidToken
	}
	payload := strings.Join(parts[:3], ":")
	if !hmac.Equal([]byte(v.sign(payload)), []byte(parts[3])) {
		return Identity{}, ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || now.Unix() > exp {
		return Identity{}, ErrInvalidToken
	}
	subject, err := uuid.Parse(parts[0])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	role := parts[1]
	if role != RoleUser && role != RoleAdmin && role != RoleBot {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: subject, Role: role}, nil
}

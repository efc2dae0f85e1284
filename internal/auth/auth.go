// Package auth issues and verifies the JWT permission tokens that scope
// access to a store. A token carries an allow-list of permissions under the
// Allow claim plus an expiry; permissions form a ladder from read to admin.
package auth

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Permission names, ordered from weakest to strongest.
const (
	PermRead  = "read"
	PermWrite = "write"
	PermSign  = "sign"
	PermAdmin = "admin"
)

var (
	// AdminPerms allows everything.
	AdminPerms = []string{PermRead, PermWrite, PermSign, PermAdmin}
	// SignPerms allows reading, writing and signing.
	SignPerms = []string{PermRead, PermWrite, PermSign}
	// WritePerms allows reading and writing.
	WritePerms = []string{PermRead, PermWrite}
	// ReadPerms allows reading only.
	ReadPerms = []string{PermRead}
)

var (
	// ErrTokenInvalid means the token failed signature or claim validation.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired means the token was valid but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrPermissionDenied means the token's allow-list does not contain the
	// required permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownPerm means a permission name outside the ladder.
	ErrUnknownPerm = errors.New("unknown permission")
)

// keySize is the length of the token secret in bytes.
const keySize = 32

// Perms returns the allow-list for the named permission level.
func Perms(level string) ([]string, error) {
	switch level {
	case PermAdmin:
		return AdminPerms, nil
	case PermSign:
		return SignPerms, nil
	case PermWrite:
		return WritePerms, nil
	case PermRead:
		return ReadPerms, nil
	}
	return nil, errors.Wrapf(ErrUnknownPerm, "%q", level)
}

// claims is the fixed claim shape of a permission token.
type claims struct {
	Allow []string `json:"Allow"`
	jwt.RegisteredClaims
}

// GenerateKey returns a fresh random token secret.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "generate token secret")
	}
	return key, nil
}

// CreateToken signs a token granting perms, valid for ttl from now.
func CreateToken(perms []string, key []byte, ttl time.Duration) (string, error) {
	c := claims{
		Allow: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// VerifyToken checks the token's signature and expiry and returns the
// allow-list it grants.
func VerifyToken(token string, key []byte) ([]string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(ErrTokenExpired, err.Error())
		}
		return nil, errors.Wrap(ErrTokenInvalid, err.Error())
	}
	return c.Allow, nil
}

// Require returns nil when the allow-list contains perm.
func Require(allow []string, perm string) error {
	for _, p := range allow {
		if p == perm {
			return nil
		}
	}
	return errors.Wrapf(ErrPermissionDenied, "need %q, token allows %v", perm, allow)
}

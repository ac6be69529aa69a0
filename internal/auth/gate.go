package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Sanishdngl/Event-sub000/internal/store"
)

// Reason classifies a handshake rejection. Each reason maps to a distinct
// WebSocket close code so the client can tell "retry with a fresh token"
// apart from "stop retrying".
type Reason string

const (
	ReasonMissingCredential    Reason = "missing_credential"
	ReasonInvalidCredential    Reason = "invalid_credential"
	ReasonMalformedSubject     Reason = "malformed_subject"
	ReasonInvalidSubjectFormat Reason = "invalid_subject_format"
	ReasonSubjectNotFound      Reason = "subject_not_found"
	ReasonRoleNotFound         Reason = "role_not_found"
	ReasonInternal             Reason = "internal_error"
)

// Close codes live in the 4000 range reserved for application use.
const (
	CloseInternal             = 4000
	CloseMissingCredential    = 4001
	CloseInvalidCredential    = 4002
	CloseMalformedSubject     = 4003
	CloseInvalidSubjectFormat = 4004
	CloseSubjectNotFound      = 4005
	CloseRoleNotFound         = 4006
)

// CloseCode returns the WebSocket close code for the reason.
func (r Reason) CloseCode() int {
	switch r {
	case ReasonMissingCredential:
		return CloseMissingCredential
	case ReasonInvalidCredential:
		return CloseInvalidCredential
	case ReasonMalformedSubject:
		return CloseMalformedSubject
	case ReasonInvalidSubjectFormat:
		return CloseInvalidSubjectFormat
	case ReasonSubjectNotFound:
		return CloseSubjectNotFound
	case ReasonRoleNotFound:
		return CloseRoleNotFound
	}
	return CloseInternal
}

// IsAuthCloseCode reports whether code is one of the handshake rejection
// codes. The client treats these as terminal and stops reconnecting.
func IsAuthCloseCode(code int) bool {
	return code >= CloseMissingCredential && code <= CloseRoleNotFound
}

// Error is a handshake rejection with its taxonomy reason.
type Error struct {
	Reason Reason
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("authentication rejected (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("authentication rejected (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

func reject(reason Reason, cause error) *Error {
	return &Error{Reason: reason, cause: cause}
}

// Identity is the resolved, immutable identity of a connection. Set once at
// handshake time; there is no re-auth mid-session.
type Identity struct {
	UserID   string
	RoleID   string
	RoleName string
}

// Recipients returns the identity's recipient predicates: its direct user
// id plus both role identifiers, matched as alternatives.
func (id Identity) Recipients() []store.Recipient {
	rcpts := []store.Recipient{store.User(id.UserID)}
	if id.RoleID != "" {
		rcpts = append(rcpts, store.Role(id.RoleID))
	}
	if id.RoleName != "" && id.RoleName != id.RoleID {
		rcpts = append(rcpts, store.Role(id.RoleName))
	}
	return rcpts
}

// Claims is the JWT payload issued by the login service. Only the subject
// is trusted here; role membership is re-resolved against the directory.
type Claims struct {
	jwt.RegisteredClaims
}

// Gate authenticates WebSocket handshakes. It verifies the bearer token
// signature, extracts the subject and resolves it against the user
// directory, performing exactly one directory read per handshake.
type Gate struct {
	secret    []byte
	directory Directory
}

// NewGate builds a Gate around an HS256 secret and a user directory.
func NewGate(secret string, directory Directory) *Gate {
	return &Gate{secret: []byte(secret), directory: directory}
}

// Resolve validates token and returns the connection identity, or an
// *Error naming the rejection reason.
func (g *Gate) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, reject(ReasonMissingCredential, nil)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return Identity{}, reject(ReasonInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, reject(ReasonInvalidCredential, errors.New("invalid token claims"))
	}
	if claims.Subject == "" {
		return Identity{}, reject(ReasonMalformedSubject, errors.New("token carries no subject"))
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return Identity{}, reject(ReasonInvalidSubjectFormat, err)
	}

	account, err := g.directory.Lookup(ctx, claims.Subject)
	if errors.Is(err, ErrAccountNotFound) {
		return Identity{}, reject(ReasonSubjectNotFound, err)
	}
	if err != nil {
		return Identity{}, reject(ReasonInternal, err)
	}
	if account.RoleID == "" && account.RoleName == "" {
		return Identity{}, reject(ReasonRoleNotFound, fmt.Errorf("account %s has no role", account.ID))
	}

	return Identity{
		UserID:   account.ID,
		RoleID:   account.RoleID,
		RoleName: account.RoleName,
	}, nil
}

// SignToken issues an HS256 token for userID. Token issuance proper lives
// in the login service; this exists for tooling and tests.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "event-sub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dajam-backend/internal/models"
)

type contextKey string

const ClaimsKey contextKey = "participant_claims"

// DefaultTokenTTL matches how long a participation stays resumable.
const DefaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid participant token")

// Claims identify a participant of one session. Role is a tag, not a
// permission model.
type Claims struct {
	ParticipantID uuid.UUID
	SessionID     uuid.UUID
	Role          models.Role
}

type JWTAuth struct {
	Secret []byte
	TTL    time.Duration
}

func NewJWTAuth(secret string, ttl time.Duration) *JWTAuth {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTAuth{Secret: []byte(secret), TTL: ttl}
}

// IssueToken signs a participant token for p.
func (j *JWTAuth) IssueToken(p *models.Participant) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"participant_id": p.ID.String(),
		"session_id":     p.SessionID.String(),
		"role":           string(p.Role),
		"exp":            now.Add(j.TTL).Unix(),
		"iat":            now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ParseToken verifies tokenStr and returns its claims.
func (j *JWTAuth) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	pidStr, _ := mc["participant_id"].(string)
	sidStr, _ := mc["session_id"].(string)
	roleStr, _ := mc["role"].(string)

	pid, err := uuid.Parse(pidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: participant id", ErrInvalidToken)
	}
	sid, err := uuid.Parse(sidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: session id", ErrInvalidToken)
	}
	role := models.Role(roleStr)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role", ErrInvalidToken)
	}

	return &Claims{ParticipantID: pid, SessionID: sid, Role: role}, nil
}

// Middleware validates the bearer token and attaches its claims to the
// request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		claims, err := j.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose token carries none of roles. It must
// run after Middleware.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing participant token", r)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Your role cannot do this", r)
		})
	}
}

// GetClaims extracts the participant claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(ClaimsKey).(*Claims)
	return c
}

// WithClaims returns ctx carrying c.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}

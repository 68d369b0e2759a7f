package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

const actorKey contextKey = "actor"

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

// IssueToken signs an HS256 token for userID. Used by the simulator and tests.
func IssueToken(cfg JWTConfig, userID uuid.UUID, roles []appointment.Role, ttl time.Duration) (string, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: names,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// Authenticator verifies the bearer token and stores the caller as an appointment.Actor.
func Authenticator(cfg JWTConfig) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := parseActor(parser, cfg.SigningKey, r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseActor(parser *jwt.Parser, key []byte, header string) (appointment.Actor, error) {
	if header == "" {
		return appointment.Actor{}, errors.New("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return appointment.Actor{}, errors.New("invalid authorization format")
	}

	claims := &Claims{}
	token, err := parser.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil || !token.Valid {
		return appointment.Actor{}, errors.New("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return appointment.Actor{}, errors.New("token subject must be a user id")
	}

	actor := appointment.Actor{UserID: userID}
	for _, r := range claims.Roles {
		switch role := appointment.Role(r); role {
		case appointment.RolePatient, appointment.RoleDoctor, appointment.RoleAdmin:
			actor.Roles = append(actor.Roles, role)
		}
	}
	return actor, nil
}

// ActorFromContext returns the authenticated caller, or the zero Actor.
func ActorFromContext(ctx context.Context) appointment.Actor {
	if a, ok := ctx.Value(actorKey).(appointment.Actor); ok {
		return a
	}
	return appointment.Actor{}
}

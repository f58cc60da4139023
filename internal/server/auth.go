package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	TokenTTL               time.Duration
}

func (c AuthConfig) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 24 * time.Hour
}

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Role     string
	FullName string
	Source   string
}

func (p Principal) actor() rbac.AuthContext {
	return rbac.AuthContext{UserID: p.UserID, Role: p.Role}
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorFromContext(ctx context.Context) (rbac.AuthContext, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p.actor(), nil
	}
	return rbac.AuthContext{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role     string `json:"role,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

func issueToken(secret string, p domain.Profile, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     p.Role,
		FullName: p.FullName,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{
		UserID:   claims.Subject,
		Role:     claims.Role,
		FullName: claims.FullName,
		Source:   "jwt",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo, logger *zap.Logger) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):     true,
		path.Join(basePath, "auth/login"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			legacyActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if legacyActor != "" && cfg.AllowLegacyActorHeader {
				role, err := r.GetUserRole(req.Context(), legacyActor)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "unknown actor", nil))
					return
				}
				logger.Warn("using legacy X-Actor-Id header without auth; this path is deprecated",
					zap.String("actor_id", legacyActor))
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{
					UserID: legacyActor,
					Role:   role,
					Source: "legacy_header",
				})))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func registerAuth(api huma.API, e engine.Engine, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in with email and password",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		p, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(cfg.JWTSecret, p, cfg.tokenTTL(), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a team member or client login",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterUserRequest `json:"body"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RegisterUser(ctx, actor, engine.RegisterUserOptions{
			Email:    input.Body.Email,
			FullName: input.Body.FullName,
			Password: input.Body.Password,
			Role:     input.Body.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	type meResponse struct {
		UserID      string         `json:"user_id"`
		Role        string         `json:"role"`
		FullName    string         `json:"full_name,omitempty"`
		Permissions []string       `json:"permissions"`
		Navigation  []rbac.NavItem `json:"navigation"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal, permissions and navigation",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body meResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		perms := rbac.PermissionNames(p.Role)
		if perms == nil {
			perms = []string{}
		}
		nav := rbac.NavigationFor(p.Role)
		if nav == nil {
			nav = []rbac.NavItem{}
		}
		return &struct {
			Body meResponse `json:"body"`
		}{Body: meResponse{
			UserID:      p.UserID,
			Role:        p.Role,
			FullName:    p.FullName,
			Permissions: perms,
			Navigation:  nav,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "route-access",
		Method:      http.MethodGet,
		Path:        "/me/route-access",
		Summary:     "Check whether the caller may open a route",
	}, func(ctx context.Context, input *struct {
		Path string `query:"path" required:"true"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"allowed": rbac.CanAccessRoute(p.Role, input.Path)}}, nil
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aqylal/apiserver/internal/services"
	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// AuthClaims is the signed identity a token carries. TableName pins the
// role table the id belongs to; after a migration the old claims point at
// a deleted row and fail resolution.
type AuthClaims struct {
	UserID    int    `json:"id"`
	RoleID    int    `json:"role_id"`
	TableName string `json:"table_name"`
	jwt.RegisteredClaims
}

// IdentityResolver turns token claims back into a live account row.
type IdentityResolver interface {
	FindInTable(ctx context.Context, table string, id int) (types.Profile, error)
}

// LoginRecorder counts login outcomes.
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	userService *services.UserService
	secret      []byte
	tokenTTL    time.Duration
	metrics     LoginRecorder
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
// A zero tokenTTL falls back to the default.
func NewAuthHandler(userService *services.UserService, jwtSecret string, tokenTTL time.Duration, metrics LoginRecorder) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		userService: userService,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		metrics:     metrics,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(authMiddleware).Post("/logout-all", handler.LogoutAll)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// RequireAuth builds middleware that verifies the bearer token and resolves
// its (id, table_name) claims against the claimed role table. A stale token
// whose row was migrated away resolves to nothing and is rejected.
func RequireAuth(jwtSecret string, resolver IdentityResolver) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := parseToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			profile, err := resolver.FindInTable(r.Context(), claims.TableName, claims.UserID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			actor := services.Actor{
				ID:     profile.ID,
				RoleID: profile.RoleID,
				Table:  claims.TableName,
			}
			ctx := context.WithValue(r.Context(), contextIdentityKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a student account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Login = strings.TrimSpace(req.Login)
	if req.Email == "" || req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if _, err := h.userService.FindByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	profile, err := h.userService.Register(r.Context(), store.RegisterInput{
		Email:        req.Email,
		Login:        req.Login,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Language:     req.Language,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := IssueToken(profile.ID, profile.RoleID, profile.Table, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	if _, err := h.userService.OpenSession(r.Context(), profile.ID, token, h.tokenTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: profile})
}

// Login verifies credentials against whichever role table holds the email
// and returns a JWT bound to that table.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	profile, err := h.userService.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.recordLogin("failed")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		h.recordLogin("failed")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := IssueToken(profile.ID, profile.RoleID, profile.Table, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	if _, err := h.userService.OpenSession(r.Context(), profile.ID, token, h.tokenTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	h.recordLogin("ok")
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: profile})
}

// Logout drops the session holding the presented token. A token with no
// live session (already logged out, or expired) is rejected rather than
// silently acknowledged.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenString, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := h.userService.Session(r.Context(), tokenString); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	if err := h.userService.CloseSession(r.Context(), tokenString); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll drops every session of the authenticated account.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.userService.CloseAllSessions(r.Context(), actor.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("closed %d sessions", count)})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.userService.FindInTable(r.Context(), actor.Table, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) recordLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(outcome)
	}
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Login     string `json:"login"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  types.Profile `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// IssueToken mints an HS256 token carrying the (id, role_id, table_name)
// triple the middleware resolves on every request.
func IssueToken(userID, roleID int, table string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AuthClaims{
		UserID:    userID,
		RoleID:    roleID,
		TableName: table,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(tokenString string, secret []byte) (AuthClaims, error) {
	claims := AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return AuthClaims{}, err
	}
	if !token.Valid {
		return AuthClaims{}, errors.New("invalid token")
	}
	if claims.UserID < 1 || !types.ValidTable(claims.TableName) {
		return AuthClaims{}, errors.New("invalid claims")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

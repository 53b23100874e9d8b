package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aqylal/apiserver/internal/services"
	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler provides profile and role-management endpoints.
type UserHandler struct {
	userService       *services.UserService
	roleChangeService *services.RoleChangeService
	secret            []byte
	tokenTTL          time.Duration
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
// A zero tokenTTL falls back to the default.
func NewUserHandler(userService *services.UserService, roleChangeService *services.RoleChangeService, jwtSecret string, tokenTTL time.Duration) *UserHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &UserHandler{
		userService:       userService,
		roleChangeService: roleChangeService,
		secret:            []byte(jwtSecret),
		tokenTTL:          tokenTTL,
	}
}

// UserRouter registers user routes on the given router. All routes require
// authentication.
func UserRouter(r chi.Router, handler *UserHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/update-role", handler.UpdateRole)
	r.Get("/profile", handler.GetProfile)
	r.Put("/profile", handler.UpdateProfile)
	r.Put("/change-language", handler.ChangeLanguage)
}

// UpdateRoleRequest names the subject account and its new role.
type UpdateRoleRequest struct {
	UserID    int `json:"user_id"`
	NewRoleID int `json:"new_role_id"`
}

// RoleChangeResponse reports a completed migration. NewUserID and Token are
// only present when the account actually moved tables; the caller must
// discard the subject's old token either way it knows about one.
type RoleChangeResponse struct {
	Message   string `json:"message"`
	NewUserID int    `json:"new_user_id,omitempty"`
	Token     string `json:"token,omitempty"`
}

// UpdateRole migrates another account to a new role. Admins may move
// anyone; moderators may not touch admins or other moderators.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if actor.RoleID != types.RoleAdmin && actor.RoleID != types.RoleModerator {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.UserID < 1 || !types.ValidRole(req.NewRoleID) {
		writeError(w, http.StatusBadRequest, "invalid user id or role")
		return
	}

	result, err := h.roleChangeService.ChangeRole(r.Context(), actor, req.UserID, req.NewRoleID)
	if err != nil {
		h.writeRoleChangeError(w, err)
		return
	}

	if !result.Migrated {
		writeJSON(w, http.StatusOK, RoleChangeResponse{
			Message: "account already has role " + types.RoleName(req.NewRoleID),
		})
		return
	}

	token, err := IssueToken(result.NewUserID, result.NewRoleID, result.TargetTable, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, RoleChangeResponse{
		Message:   "role updated",
		NewUserID: result.NewUserID,
		Token:     token,
	})
}

// GetProfile returns the authenticated account's profile, including the
// subject list for teachers.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.userService.FindInTable(r.Context(), actor.Table, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	response := ProfileResponse{Profile: profile}

	// Directly seeded accounts may have no settings row; that is not an error.
	if settings, err := h.userService.Settings(r.Context(), profile.ID); err == nil {
		response.Language = settings.Language
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	if profile.RoleID == types.RoleTeacher {
		subjects, err := h.userService.Subjects(r.Context(), profile.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load subjects")
			return
		}
		response.Subjects = subjects
	}

	writeJSON(w, http.StatusOK, response)
}

// ChangeLanguageRequest carries the new interface language.
type ChangeLanguageRequest struct {
	Language string `json:"language"`
}

// ChangeLanguage upserts the authenticated account's interface language.
func (h *UserHandler) ChangeLanguage(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangeLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Language = strings.TrimSpace(req.Language)
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	if err := h.userService.SetLanguage(r.Context(), actor.ID, req.Language); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update language")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "language updated"})
}

// ProfileUpdateRequest is a partial profile edit, optionally with a new
// role id triggering a self-service migration.
type ProfileUpdateRequest struct {
	types.ProfileUpdate
	RoleID *int `json:"role_id"`
}

type ProfileResponse struct {
	Profile  types.Profile `json:"profile"`
	Language string        `json:"language,omitempty"`
	Subjects []string      `json:"subjects,omitempty"`
}

// UpdateProfile edits the authenticated account. When the request carries a
// role_id different from the current role, the account migrates itself and
// the response carries the replacement token.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if req.RoleID != nil && *req.RoleID != actor.RoleID {
		if !types.ValidRole(*req.RoleID) {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}

		result, err := h.roleChangeService.ChangeRole(r.Context(), actor, actor.ID, *req.RoleID)
		if err != nil {
			h.writeRoleChangeError(w, err)
			return
		}

		token, err := IssueToken(result.NewUserID, result.NewRoleID, result.TargetTable, h.secret, h.tokenTTL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create token")
			return
		}

		writeJSON(w, http.StatusOK, RoleChangeResponse{
			Message:   "role changed, sign in with the new token",
			NewUserID: result.NewUserID,
			Token:     token,
		})
		return
	}

	profile, err := h.userService.FindInTable(r.Context(), actor.Table, actor.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	if err := h.userService.UpdateProfile(r.Context(), profile, req.ProfileUpdate); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "profile updated"})
}

func (h *UserHandler) writeRoleChangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "insufficient privileges")
	case errors.Is(err, store.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid role")
	case errors.Is(err, store.ErrSameRole):
		writeError(w, http.StatusBadRequest, "account already has this role")
	default:
		writeError(w, http.StatusInternalServerError, "failed to change role")
	}
}

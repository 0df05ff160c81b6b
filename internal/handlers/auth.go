package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/middleware"
	"github.com/ukydev/fleet-automation/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	log            logrus.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		log:            log,
	}
}

// Login exchanges a username and password for a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondFail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), req.Username)
	if err != nil || !h.authService.CheckPassword(req.Password, user.PasswordHash) {
		respondFail(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}
	if !user.IsActive {
		respondFail(w, http.StatusUnauthorized, auth.ErrUserInactive.Error())
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		h.log.WithError(err).Error("failed to sign token")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("failed to update last login")
	}

	respondOK(w, http.StatusOK, models.LoginResponse{Token: token, User: *user}, "Logged in.")
}

// Register creates an operator account. The route is limited to user
// managers.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var errs []string
	for _, err := range []error{
		h.authService.ValidateUsername(req.Username),
		h.authService.ValidateEmail(req.Email),
		h.authService.ValidatePassword(req.Password),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if !models.IsValidRole(req.Role) {
		errs = append(errs, "invalid role")
	}
	if len(errs) > 0 {
		respondFail(w, http.StatusBadRequest, "Validation failed", errs...)
		return
	}

	if _, err := h.userCollection.FindUserByUsername(r.Context(), req.Username); err == nil {
		respondFail(w, http.StatusConflict, "Username already exists")
		return
	}
	if _, err := h.userCollection.FindUserByEmail(r.Context(), req.Email); err == nil {
		respondFail(w, http.StatusConflict, "Email already exists")
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		h.log.WithError(err).Error("failed to hash password")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = h.userCollection.InsertUser(r.Context(), user)
	if errors.Is(err, db.ErrDuplicate) {
		respondFail(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("failed to create user")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.log.WithFields(logrus.Fields{"username": user.Username, "role": user.Role}).Info("user registered")
	respondOK(w, http.StatusCreated, user, "User created.")
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondFail(w, http.StatusUnauthorized, "User context not found")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondFail(w, http.StatusNotFound, "User not found")
		return
	}
	respondOK(w, http.StatusOK, user, "")
}

// UpdateProfile updates the current user's name and email.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondFail(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondFail(w, http.StatusNotFound, "User not found")
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		if err := h.authService.ValidateEmail(req.Email); err != nil {
			respondFail(w, http.StatusBadRequest, err.Error())
			return
		}
		existing, err := h.userCollection.FindUserByEmail(r.Context(), req.Email)
		if err == nil && existing.ID.Hex() != claims.UserID {
			respondFail(w, http.StatusConflict, "Email already exists")
			return
		}
		user.Email = strings.ToLower(req.Email)
	}

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		h.log.WithError(err).WithField("user_id", claims.UserID).Error("failed to update user")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondOK(w, http.StatusOK, user, "Profile updated successfully")
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondFail(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		respondFail(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(req.NewPassword); err != nil {
		respondFail(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondFail(w, http.StatusNotFound, "User not found")
		return
	}
	if !h.authService.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		respondFail(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		h.log.WithError(err).Error("failed to hash password")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	user.PasswordHash = hash
	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		h.log.WithError(err).WithField("user_id", claims.UserID).Error("failed to update password")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondOK(w, http.StatusOK, nil, "Password changed successfully")
}

// ListUsers returns every operator account.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userCollection.ListUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list users")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondOK(w, http.StatusOK, users, "")
}

// DeleteUser removes another operator account.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondFail(w, http.StatusUnauthorized, "User context not found")
		return
	}
	id := chi.URLParam(r, "id")
	if id == claims.UserID {
		respondFail(w, http.StatusBadRequest, "Cannot delete your own account.")
		return
	}

	err := h.userCollection.DeleteUser(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondFail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("user_id", id).Error("failed to delete user")
		respondFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": id, "deleted_by": claims.Username}).Info("user deleted")
	respondOK(w, http.StatusOK, nil, "User deleted.")
}

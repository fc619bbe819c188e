package handlers

import (
	"net/http"
	"strings"

	"github.com/furniro/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const userNotFound = "User not found"

// UserHandler provides the role administration endpoints.
type UserHandler struct {
	userService *services.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// UserRouter registers role administration routes. Every route is admin only.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	requireAdmin func(http.Handler) http.Handler,
	logger *zap.Logger,
) {
	handler := NewUserHandler(userService, logger)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/make-admin", handler.MakeAdmin)
		r.Post("/update-role", handler.UpdateRole)
		r.Post("/remove-user", handler.RemoveUser)
		r.Get("/users", handler.ListUsers)
	})
}

func (h *UserHandler) MakeAdmin(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.userService.MakeAdmin(r.Context(), req.Email); err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	h.logger.Info("user promoted to admin", actor(r), zap.String("email", req.Email))
	writeJSON(w, http.StatusOK, UserResponse{Message: "User promoted to admin", Email: strings.TrimSpace(req.Email)})
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.userService.UpdateRole(r.Context(), req.Email, req.Role); err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	h.logger.Info("user role updated", actor(r), zap.String("email", req.Email), zap.String("role", req.Role))
	writeJSON(w, http.StatusOK, UserResponse{Message: "Role updated to " + req.Role, Email: strings.TrimSpace(req.Email)})
}

func (h *UserHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.userService.RemoveUser(r.Context(), req.Email); err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	h.logger.Info("user removed", actor(r), zap.String("email", req.Email))
	writeJSON(w, http.StatusOK, UserResponse{Message: "User removed", Email: strings.TrimSpace(req.Email)})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// RoleRequest is shared by the role administration endpoints. Role is only
// read by update-role.
type RoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type UserResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

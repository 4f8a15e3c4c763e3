package handlers

import (
	"net/http"

	"github.com/buildwave/apiserver/internal/services"
	"github.com/buildwave/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler provides the admin user listing.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// AdminUserRouter registers the admin user routes.
func AdminUserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)
	r.Get("/", handler.ListUsers)
}

// UserListResponse is the paginated list response payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.userService.List(r.Context(), offset, limit)
	if err != nil {
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

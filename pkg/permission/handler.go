package permission

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/pg-role-manager/pkg/dbcheck"
	"github.com/tendant/pg-role-manager/pkg/roledef"
	"github.com/tendant/pg-role-manager/pkg/rolemgr"
)

// Handler handles HTTP requests for permission management
type Handler struct {
	permissionService *PermissionService
}

// NewHandler creates a new permission handler
func NewHandler(permissionService *PermissionService) *Handler {
	return &Handler{
		permissionService: permissionService,
	}
}

// RegisterRoutes registers the permission routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.Post("/assign", h.AssignRole)
		r.Post("/revoke", h.RevokeRole)
		r.Put("/update", h.UpdatePermissions)
		r.Get("/users", h.ListUsers)
	})
}

type grantRequest struct {
	rolemgr.ScopeRequest
	Username                string `json:"username"`
	RoleName                string `json:"role_name"`
	SchemaName              string `json:"schema_name"`
	RevokeObjectPermissions bool   `json:"revoke_object_permissions"`
}

func (g grantRequest) grant() PrincipalGrant {
	return PrincipalGrant{
		Username:                g.Username,
		RoleName:                g.RoleName,
		SchemaName:              g.SchemaName,
		RevokeObjectPermissions: g.RevokeObjectPermissions,
	}
}

func writeServiceError(w http.ResponseWriter, action string, err error) {
	var preconditionErr *PreconditionError
	var validationErr *roledef.ValidationError
	var identifierErr *roledef.InvalidIdentifierError
	switch {
	case errors.As(err, &preconditionErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &validationErr), errors.As(err, &identifierErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("permission operation failed", "action", action, "err", err)
		http.Error(w, "Failed to "+action+": "+err.Error(), http.StatusInternalServerError)
	}
}

// AssignRole handles the request to grant a role to a principal
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var request grantRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := request.PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Username == "" || request.RoleName == "" {
		http.Error(w, "username and role_name are required", http.StatusBadRequest)
		return
	}

	result, err := h.permissionService.Assign(r.Context(), key, request.grant())
	if err != nil {
		writeServiceError(w, "assign role", err)
		return
	}

	render.JSON(w, r, result)
}

// RevokeRole handles the request to revoke a role from a principal
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	var request grantRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := request.PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Username == "" || request.RoleName == "" {
		http.Error(w, "username and role_name are required", http.StatusBadRequest)
		return
	}

	result, err := h.permissionService.Revoke(r.Context(), key, request.grant())
	if err != nil {
		var partialErr *PartialFailureError
		if errors.As(err, &partialErr) {
			// Membership may already be gone; report what failed.
			render.Status(r, http.StatusMultiStatus)
			render.JSON(w, r, result)
			return
		}
		writeServiceError(w, "revoke role", err)
		return
	}

	render.JSON(w, r, result)
}

type updateRequest struct {
	rolemgr.ScopeRequest
	Username       string `json:"username"`
	PermissionTier string `json:"permission_tier"`
	SchemaName     string `json:"schema_name"`
}

// UpdatePermissions handles the request to move a principal to a
// different permission tier
func (h *Handler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var request updateRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := request.PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Username == "" || request.PermissionTier == "" || request.SchemaName == "" {
		http.Error(w, "username, permission_tier and schema_name are required", http.StatusBadRequest)
		return
	}

	result, err := h.permissionService.UpdatePermissions(r.Context(), key, request.Username, request.PermissionTier, request.SchemaName)
	if err != nil {
		writeServiceError(w, "update permissions", err)
		return
	}

	render.JSON(w, r, result)
}

// ListUsers handles the request to list principals and their managed
// roles for a schema
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	key, err := rolemgr.ScopeFromQuery(r).PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		http.Error(w, "schema is required", http.StatusBadRequest)
		return
	}

	users, err := h.permissionService.ListUsersAndRoles(r.Context(), key, schema)
	if err != nil {
		writeServiceError(w, "list users", err)
		return
	}

	response := struct {
		Users []dbcheck.UserAndRoles `json:"users"`
		Total int                    `json:"total"`
	}{
		Users: users,
		Total: len(users),
	}
	render.JSON(w, r, response)
}

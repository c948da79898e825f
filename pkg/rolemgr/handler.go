package rolemgr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/tendant/pg-role-manager/pkg/connpool"
	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
)

// Handler handles HTTP requests for role management
type Handler struct {
	roleService *RoleService
}

// NewHandler creates a new role handler
func NewHandler(roleService *RoleService) *Handler {
	return &Handler{
		roleService: roleService,
	}
}

// RegisterRoutes registers the role routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Post("/initialize", h.InitializeRoles)
		r.Get("/", h.ListRoles)
		r.Get("/status", h.RegistryStatus)
	})
}

// ScopeRequest identifies the target database instance in a request
// body or query string.
type ScopeRequest struct {
	ProjectID    string `json:"project_id"`
	Region       string `json:"region"`
	InstanceName string `json:"instance_name"`
	DatabaseName string `json:"database_name"`
}

// PoolKey converts the request scope into a pool key, validating that
// all parts are present.
func (s ScopeRequest) PoolKey() (connpool.PoolKey, error) {
	key := connpool.PoolKey{
		ProjectID:    s.ProjectID,
		Region:       s.Region,
		InstanceName: s.InstanceName,
		DatabaseName: s.DatabaseName,
	}
	return key, key.Validate()
}

// ScopeFromQuery reads the scope from query parameters.
func ScopeFromQuery(r *http.Request) ScopeRequest {
	q := r.URL.Query()
	return ScopeRequest{
		ProjectID:    q.Get("project_id"),
		Region:       q.Get("region"),
		InstanceName: q.Get("instance_name"),
		DatabaseName: q.Get("database_name"),
	}
}

type initializeRequest struct {
	ScopeRequest
	SchemaName  string `json:"schema_name"`
	ForceUpdate bool   `json:"force_update"`
}

type initializeResponse struct {
	Success bool          `json:"success"`
	Created []string      `json:"created"`
	Updated []string      `json:"updated"`
	Skipped []string      `json:"skipped"`
	Failed  []RoleFailure `json:"failed"`
}

// InitializeRoles handles the request to converge roles for a scope
func (h *Handler) InitializeRoles(w http.ResponseWriter, r *http.Request) {
	var request initializeRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := request.PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.SchemaName == "" {
		http.Error(w, "schema_name is required", http.StatusBadRequest)
		return
	}

	result, err := h.roleService.Initialize(r.Context(), key, request.SchemaName, request.ForceUpdate)
	if err != nil {
		var validationErr *roledef.ValidationError
		var cycleErr *roledef.CycleError
		var identifierErr *roledef.InvalidIdentifierError
		switch {
		case errors.As(err, &validationErr), errors.As(err, &cycleErr), errors.As(err, &identifierErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			slog.Error("role initialization failed", "err", err)
			http.Error(w, "Failed to initialize roles: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	var response initializeResponse
	if err := copier.Copy(&response, result); err != nil {
		http.Error(w, "Failed to build response", http.StatusInternalServerError)
		return
	}
	response.Success = len(result.Failed) == 0

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// ListRoles handles the request to list roles in the live database
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	key, err := ScopeFromQuery(r).PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	roles, err := h.roleService.ListRoles(r.Context(), key)
	if err != nil {
		slog.Error("failed to list roles", "err", err)
		http.Error(w, "Failed to list roles: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := struct {
		Roles []RoleSummary `json:"roles"`
		Total int           `json:"total"`
	}{
		Roles: roles,
		Total: len(roles),
	}
	render.JSON(w, r, response)
}

// RegistryStatus handles the request for a scope's registry summary
func (h *Handler) RegistryStatus(w http.ResponseWriter, r *http.Request) {
	key, err := ScopeFromQuery(r).PoolKey()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.roleService.Status(r.Context(), key)
	if err != nil {
		if errors.Is(err, registry.ErrRecordNotFound) {
			http.Error(w, "No registry record for scope", http.StatusNotFound)
			return
		}
		slog.Error("failed to read registry status", "err", err)
		http.Error(w, "Failed to read registry status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, status)
}

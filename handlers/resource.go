package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/services"
)

// ResourceHandler handles resource CRUD and sharing changes. Reads are
// gated on Visible, metadata edits on Editing, and anything touching the
// policy on Managing.
type ResourceHandler struct {
	Sharing   *services.SharingService
	Evaluator *authz.Evaluator
	Resources authz.ResourceStore
}

func NewResourceHandler(sharing *services.SharingService, evaluator *authz.Evaluator, resources authz.ResourceStore) *ResourceHandler {
	return &ResourceHandler{Sharing: sharing, Evaluator: evaluator, Resources: resources}
}

// permissionView is the wire form of a policy permission
type permissionView struct {
	ID          string `json:"id"`
	Kind        string `json:"contributor_kind"`
	ContribID   string `json:"contributor_id,omitempty"`
	AccessLevel int    `json:"access"`
}

type policyView struct {
	ID          string           `json:"id"`
	Access      int              `json:"access"`
	Scope       string           `json:"sharing_scope,omitempty"`
	Permissions []permissionView `json:"permissions"`
}

func renderPolicy(p *authz.Policy) policyView {
	view := policyView{
		ID:          p.ID,
		Access:      int(p.Access),
		Scope:       string(p.Scope),
		Permissions: []permissionView{},
	}
	for _, perm := range p.Permissions {
		view.Permissions = append(view.Permissions, permissionView{
			ID:          perm.ID,
			Kind:        string(perm.Contributor.Kind),
			ContribID:   perm.Contributor.ID,
			AccessLevel: int(perm.Access),
		})
	}
	return view
}

// CreateResource handles POST /resources. The caller becomes the contributor.
func (h *ResourceHandler) CreateResource(c *gin.Context) {
	var input services.CreateResourceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	input.ContributorID = c.GetString("person_id")

	resource, err := h.Sharing.CreateResource(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create resource"})
		return
	}
	c.JSON(http.StatusCreated, resource)
}

// GetResource handles GET /resources/:type/:id, gated on Visible
func (h *ResourceHandler) GetResource(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Visible)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resource)
}

// UpdateResource handles PATCH /resources/:type/:id, gated on Editing
func (h *ResourceHandler) UpdateResource(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Editing)
	if !ok {
		return
	}

	var input services.UpdateMetadataInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.Sharing.UpdateMetadata(c.Request.Context(), resource.Type, resource.ID, input); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update resource"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Resource updated"})
}

// GetPolicy handles GET /resources/:type/:id/policy, gated on Managing
func (h *ResourceHandler) GetPolicy(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Managing)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, renderPolicy(resource.Pol))
}

// UpdatePolicy handles PUT /resources/:type/:id/policy, gated on Managing
func (h *ResourceHandler) UpdatePolicy(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Managing)
	if !ok {
		return
	}

	var input struct {
		Access int `json:"access"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updated, err := h.Sharing.UpdatePolicyAccess(c.Request.Context(), resource.Type, resource.ID, authz.AccessLevel(input.Access))
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update policy"})
		return
	}
	c.JSON(http.StatusOK, renderPolicy(updated.Pol))
}

// GrantPermission handles POST /resources/:type/:id/permissions, gated on Managing
func (h *ResourceHandler) GrantPermission(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Managing)
	if !ok {
		return
	}

	var input struct {
		Kind        string `json:"contributor_kind"`
		Contributor string `json:"contributor_id"`
		Access      int    `json:"access"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ref := authz.ContributorRef{Kind: authz.ContributorKind(input.Kind), ID: input.Contributor}
	updated, err := h.Sharing.GrantPermission(c.Request.Context(), resource.Type, resource.ID, ref, authz.AccessLevel(input.Access))
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant permission"})
		return
	}
	c.JSON(http.StatusOK, renderPolicy(updated.Pol))
}

// RevokePermission handles DELETE /resources/:type/:id/permissions, gated on Managing
func (h *ResourceHandler) RevokePermission(c *gin.Context) {
	resource, ok := requireAccess(c, h.Evaluator, h.Resources, authz.Managing)
	if !ok {
		return
	}

	var input struct {
		Kind        string `json:"contributor_kind"`
		Contributor string `json:"contributor_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ref := authz.ContributorRef{Kind: authz.ContributorKind(input.Kind), ID: input.Contributor}
	updated, err := h.Sharing.RevokePermission(c.Request.Context(), resource.Type, resource.ID, ref)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Permission not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke permission"})
		return
	}
	c.JSON(http.StatusOK, renderPolicy(updated.Pol))
}

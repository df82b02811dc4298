package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labshare/assethub/authz"
)

// CheckHandler answers "may this actor perform this action on this
// resource". Denials are uniform: a missing resource and an inaccessible
// one both read as not granted, so probing IDs reveals nothing.
type CheckHandler struct {
	Evaluator *authz.Evaluator
	Resources authz.ResourceStore
}

func NewCheckHandler(evaluator *authz.Evaluator, resources authz.ResourceStore) *CheckHandler {
	return &CheckHandler{Evaluator: evaluator, Resources: resources}
}

// Check handles GET /authorize/:type/:id?action=<name>
func (h *CheckHandler) Check(c *gin.Context) {
	action := c.Query("action")
	if action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action query parameter is required"})
		return
	}
	category := authz.Categorize(action)
	if _, ok := category.RequiredAccess(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action is not covered by authorization"})
		return
	}

	actorID := c.GetString("person_id")
	resource, err := h.Resources.GetResource(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"granted": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check authorization"})
		return
	}

	granted, err := h.Evaluator.Permits(c.Request.Context(), actorID, resource, category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check authorization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": granted, "category": category})
}

// Access handles GET /authorize/:type/:id/access, returning the actor's
// effective access level. Uses the lookup cache when one is installed.
func (h *CheckHandler) Access(c *gin.Context) {
	actorID := c.GetString("person_id")
	resource, err := h.Resources.GetResource(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"access": authz.NoAccess, "label": authz.NoAccess.String()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check authorization"})
		return
	}

	level, err := h.Evaluator.FastEvaluate(c.Request.Context(), actorID, resource)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check authorization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": level, "label": level.String()})
}

// requireAccess loads a resource and verifies the actor holds at least the
// given level. Shared by the resource and policy handlers.
func requireAccess(c *gin.Context, evaluator *authz.Evaluator, resources authz.ResourceStore, level authz.AccessLevel) (*authz.Resource, bool) {
	actorID := c.GetString("person_id")
	resource, err := resources.GetResource(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load resource"})
		return nil, false
	}

	got, err := evaluator.Evaluate(c.Request.Context(), actorID, resource)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check authorization"})
		return nil, false
	}
	if !got.AtLeast(level) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return nil, false
	}
	return resource, true
}

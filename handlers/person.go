package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/services"
)

// PersonHandler handles people and their project memberships
type PersonHandler struct {
	Memberships *services.MembershipService
}

func NewPersonHandler(memberships *services.MembershipService) *PersonHandler {
	return &PersonHandler{Memberships: memberships}
}

// requireSelfOrAdmin allows a person to act on themselves and admins to act
// on anyone.
func (h *PersonHandler) requireSelfOrAdmin(c *gin.Context, targetID string) bool {
	actorID := c.GetString("person_id")
	if actorID == targetID {
		return true
	}
	actor, err := h.Memberships.GetPerson(c.Request.Context(), actorID)
	if err != nil || !actor.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return false
	}
	return true
}

func (h *PersonHandler) requireAdmin(c *gin.Context) bool {
	actor, err := h.Memberships.GetPerson(c.Request.Context(), c.GetString("person_id"))
	if err != nil || !actor.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return false
	}
	return true
}

// GetPerson handles GET /people/:id
func (h *PersonHandler) GetPerson(c *gin.Context) {
	person, err := h.Memberships.GetPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get person"})
		return
	}
	c.JSON(http.StatusOK, person)
}

// UpdateProfile handles PATCH /people/:id
func (h *PersonHandler) UpdateProfile(c *gin.Context) {
	targetID := c.Param("id")
	if !h.requireSelfOrAdmin(c, targetID) {
		return
	}

	var input services.UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	person, err := h.Memberships.UpdateProfile(c.Request.Context(), targetID, input)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, person)
}

// UpdatePassword handles PUT /people/:id/password
func (h *PersonHandler) UpdatePassword(c *gin.Context) {
	targetID := c.Param("id")
	if !h.requireSelfOrAdmin(c, targetID) {
		return
	}

	var input struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.Memberships.UpdatePassword(c.Request.Context(), targetID, input.Password); err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
			return
		}
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// SetAdmin handles PUT /people/:id/admin, admin only
func (h *PersonHandler) SetAdmin(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var input struct {
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.Memberships.SetAdmin(c.Request.Context(), c.Param("id"), input.IsAdmin); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update admin flag"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Admin flag updated"})
}

// AddMembership handles POST /memberships, admin only
func (h *PersonHandler) AddMembership(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var input struct {
		PersonID  string `json:"person_id"`
		ProjectID string `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	membership, err := h.Memberships.AddToProject(c.Request.Context(), input.PersonID, input.ProjectID)
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "person_id and project_id are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create membership"})
		return
	}
	c.JSON(http.StatusCreated, membership)
}

// ReassignMembership handles PUT /memberships/:id/person, admin only
func (h *PersonHandler) ReassignMembership(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var input struct {
		PersonID string `json:"person_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.Memberships.ReassignMembership(c.Request.Context(), c.Param("id"), input.PersonID); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
			return
		}
		if errors.Is(err, authz.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "person_id is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reassign membership"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Membership reassigned"})
}

// LeaveMembership handles POST /memberships/:id/leave, admin only
func (h *PersonHandler) LeaveMembership(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	if err := h.Memberships.MarkLeft(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update membership"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Membership marked left"})
}

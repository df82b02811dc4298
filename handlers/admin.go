package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/internal/config"
	"github.com/labshare/assethub/lookup"
	"github.com/labshare/assethub/services"
)

// AdminHandler exposes the legacy sharing scope migration to operators.
// The batch run rewrites every ALL_USERS policy, persists the results,
// queues the affected resources for lookup recompute and writes a CSV
// audit report of everything it changed.
type AdminHandler struct {
	Memberships *services.MembershipService
	Sharing     *services.SharingService
	Resources   authz.ResourceStore
	Defaults    authz.DefaultPolicyStore
	Queue       *lookup.UpdateQueue
}

func NewAdminHandler(memberships *services.MembershipService, sharing *services.SharingService, resources authz.ResourceStore, defaults authz.DefaultPolicyStore, queue *lookup.UpdateQueue) *AdminHandler {
	return &AdminHandler{
		Memberships: memberships,
		Sharing:     sharing,
		Resources:   resources,
		Defaults:    defaults,
		Queue:       queue,
	}
}

func (h *AdminHandler) requireAdmin(c *gin.Context) bool {
	actor, err := h.Memberships.GetPerson(c.Request.Context(), c.GetString("person_id"))
	if err != nil || !actor.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return false
	}
	return true
}

// ResolveLegacyScopes handles POST /admin/resolve-legacy-scopes
func (h *AdminHandler) ResolveLegacyScopes(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ctx := c.Request.Context()

	items, err := h.Resources.ListLegacyScoped(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list legacy scoped resources"})
		return
	}

	resolver := authz.NewAllUsersSharingScopeResolver()
	resolved := 0
	for _, item := range items {
		if err := h.Sharing.ResolveLegacyScope(ctx, resolver, item); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to resolve %s %s", item.Type, item.ID)})
			return
		}
		resolved++
	}

	if err := resolver.RemoveLegacyDefaultPolicies(ctx, h.Defaults); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove legacy default policies"})
		return
	}

	auditPath := ""
	if resolver.Auditor().Len() > 0 {
		if err := os.MkdirAll(config.App.AuditDir, 0o755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create audit directory"})
			return
		}
		auditPath = filepath.Join(config.App.AuditDir, fmt.Sprintf("sharing_scope_migration_%s.csv", time.Now().Format("20060102_150405")))
		if err := resolver.Auditor().Save(auditPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write audit report"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"resolved":   resolved,
		"audited":    resolver.Auditor().Len(),
		"audit_file": auditPath,
	})
}

// QueueStatus handles GET /admin/lookup-queue
func (h *AdminHandler) QueueStatus(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	count, err := h.Queue.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": count, "enabled": h.Queue.Enabled()})
}

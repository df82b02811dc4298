package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		action   string
		expected Category
	}{
		{"view", CategoryView},
		{"show", CategoryView},
		{"index", CategoryView},
		{"favourite", CategoryView},
		{"tag_suggestions", CategoryView},
		{"download", CategoryDownload},
		{"launch", CategoryDownload},
		{"explore", CategoryDownload},
		{"compare_versions", CategoryDownload},
		{"edit", CategoryEdit},
		{"create", CategoryEdit},
		{"new_version", CategoryEdit},
		{"quick_add", CategoryEdit},
		{"retrieve_nels_sample_metadata", CategoryEdit},
		{"delete", CategoryDelete},
		{"destroy", CategoryDelete},
		{"cancel", CategoryDelete},
		{"manage", CategoryManage},
		{"storage_report", CategoryManage},
		{"extract_samples", CategoryManage},
		{"not_a_real_action", CategoryNone},
		{"", CategoryNone},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.action))
		})
	}
}

// Every listed action must map to exactly one category.
func TestActionTablesAreDisjoint(t *testing.T) {
	seen := make(map[string]Category)
	for cat, actions := range map[Category][]string{
		CategoryView:     viewActions,
		CategoryDownload: downloadActions,
		CategoryEdit:     editActions,
		CategoryDelete:   deleteActions,
		CategoryManage:   manageActions,
	} {
		for _, a := range actions {
			prev, dup := seen[a]
			assert.False(t, dup, "action %q listed in both %q and %q", a, prev, cat)
			seen[a] = cat
		}
	}
}

func TestCategorizedActionsHaveThresholds(t *testing.T) {
	for action, cat := range actionCategories {
		level, ok := cat.RequiredAccess()
		assert.True(t, ok, "action %q has no threshold", action)
		assert.True(t, level.Valid())
		assert.True(t, level >= Visible)
	}
}

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLevelOrdering(t *testing.T) {
	levels := []AccessLevel{NoAccess, Visible, Accessible, Editing, Managing}
	for i := 1; i < len(levels); i++ {
		assert.True(t, levels[i] > levels[i-1], "%s should exceed %s", levels[i], levels[i-1])
	}
}

func TestAccessLevelAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		have     AccessLevel
		need     AccessLevel
		expected bool
	}{
		{"managing covers everything", Managing, Visible, true},
		{"equal levels suffice", Editing, Editing, true},
		{"visible does not cover download", Visible, Accessible, false},
		{"no access covers nothing", NoAccess, Visible, false},
		{"anything covers no access", NoAccess, NoAccess, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.have.AtLeast(tt.need))
		})
	}
}

func TestMaxAccessNeverDowngrades(t *testing.T) {
	assert.Equal(t, Managing, MaxAccess(Managing, Visible))
	assert.Equal(t, Managing, MaxAccess(Visible, Managing))
	assert.Equal(t, Editing, MaxAccess(Editing, Editing))
	assert.Equal(t, NoAccess, MaxAccess(NoAccess, NoAccess))
}

func TestAccessLevelValid(t *testing.T) {
	for level := NoAccess; level <= Managing; level++ {
		assert.True(t, level.Valid())
	}
	assert.False(t, AccessLevel(-1).Valid())
	assert.False(t, AccessLevel(5).Valid())
}

func TestCategoryRequiredAccess(t *testing.T) {
	tests := []struct {
		category Category
		level    AccessLevel
		ok       bool
	}{
		{CategoryView, Visible, true},
		{CategoryDownload, Accessible, true},
		{CategoryEdit, Editing, true},
		{CategoryDelete, Managing, true},
		{CategoryManage, Managing, true},
		{CategoryNone, NoAccess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			level, ok := tt.category.RequiredAccess()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.level, level)
			}
		})
	}
}

// Delete and manage both require Managing: neither dominates the other.
func TestDeleteAndManageShareThreshold(t *testing.T) {
	deleteLevel, _ := CategoryDelete.RequiredAccess()
	manageLevel, _ := CategoryManage.RequiredAccess()
	assert.Equal(t, deleteLevel, manageLevel)
}

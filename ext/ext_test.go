package ext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/ext"
	"github.com/dotorm/dotorm/field"
)

func TestApplyMergesSelectionExtensionOptions(t *testing.T) {
	r := ext.NewRegistry()
	base := []*field.Descriptor{
		field.Selection("status", []field.SelectOption{{Value: "open"}, {Value: "closed"}}),
	}
	r.Register("task", "billing", field.SelectionExtension("status", []field.SelectOption{{Value: "invoiced"}}))

	merged := r.Apply("task", base)
	require.Len(t, merged, 1)
	assert.Equal(t, []string{"open", "closed", "invoiced"}, merged[0].Values())
	assert.Empty(t, r.Conflicts())
}

func TestApplyRecordsConflictOnNonAdditiveCollision(t *testing.T) {
	r := ext.NewRegistry()
	base := []*field.Descriptor{field.Char("note", 255)}
	r.Register("task", "reporting", field.Char("note", 255, field.WithDescription("overridden")))

	merged := r.Apply("task", base)
	require.Len(t, merged, 1)
	assert.Equal(t, "overridden", merged[0].Description)

	conflicts := r.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "task", conflicts[0].Table)
	assert.Equal(t, "note", conflicts[0].Field)
	assert.Equal(t, "reporting", conflicts[0].WinningFrom)
}

func TestApplyAddsNewExtensionFieldWithoutBase(t *testing.T) {
	r := ext.NewRegistry()
	r.Register("task", "billing", field.Integer("invoice_id"))

	merged := r.Apply("task", nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "invoice_id", merged[0].Name)
	assert.Empty(t, r.Conflicts())
}

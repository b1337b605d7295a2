package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileDescriptor() Descriptor {
	return Descriptor{
		Key:             "profile",
		PrimaryKeyField: "uuid",
		Columns: []ColumnDescriptor{
			{Name: "uuid", GoType: "string", SQLType: "TEXT", JSONPath: "$.uuid"},
			{Name: "level", GoType: "int", SQLType: "INTEGER", JSONPath: "$.level", Indexed: true},
		},
	}
}

func TestRegistryGetReturnsRegisteredDescriptor(t *testing.T) {
	r := NewRegistry()
	r.Register(profileDescriptor())

	d, err := r.Get("profile")
	require.NoError(t, err)
	assert.Equal(t, "uuid", d.PrimaryKeyField)
	assert.Len(t, d.Columns, 2)
}

func TestRegistryGetUnknownSchemaFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent")
	assert.Error(t, err)
}

func TestRegistryRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(profileDescriptor())

	replacement := profileDescriptor()
	replacement.Columns = append(replacement.Columns, ColumnDescriptor{Name: "banned", GoType: "bool", SQLType: "BOOLEAN"})
	r.Register(replacement)

	d, err := r.Get("profile")
	require.NoError(t, err)
	assert.Len(t, d.Columns, 3)
}

func TestRegistryKeysListsEveryRegisteredSchema(t *testing.T) {
	r := NewRegistry()
	r.Register(profileDescriptor())
	r.Register(Descriptor{Key: "inventory", PrimaryKeyField: "uuid"})

	assert.ElementsMatch(t, []string{"profile", "inventory"}, r.Keys())
}

func TestDescriptorColumnLookup(t *testing.T) {
	d := profileDescriptor()

	col, ok := d.Column("level")
	require.True(t, ok)
	assert.True(t, col.Indexed)

	_, ok = d.Column("missing")
	assert.False(t, ok)
}

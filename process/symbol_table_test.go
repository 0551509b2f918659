package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableMissingReadsZero(t *testing.T) {
	table := NewSymbolTable(4)

	assert.Equal(t, uint16(0), table.Get("nope"))
	_, ok := table.Lookup("nope")
	assert.False(t, ok)

	v, ok := table.GetAt(0x42)
	assert.False(t, ok)
	assert.Equal(t, uint16(0), v)
}

func TestSymbolTableCapacityAppliesToEveryInsert(t *testing.T) {
	table := NewSymbolTable(3)

	require.True(t, table.Declare("a", 1))
	require.True(t, table.Set("b", 2))
	require.True(t, table.WriteAt(0x10, 3))
	assert.Equal(t, 3, table.Len())

	assert.False(t, table.Declare("c", 4))
	assert.False(t, table.Set("d", 5))
	assert.False(t, table.WriteAt(0x20, 6))
	assert.False(t, table.Insert(0x30, "e", 7))
	assert.Equal(t, 3, table.Len())

	// updates still go through when full
	assert.True(t, table.Set("a", 10))
	assert.True(t, table.WriteAt(0x10, 30))
	assert.Equal(t, uint16(10), table.Get("a"))
	v, _ := table.GetAt(0x10)
	assert.Equal(t, uint16(30), v)
}

func TestSymbolTableAddresses(t *testing.T) {
	table := NewSymbolTable(8)

	require.True(t, table.WriteAt(addressBase+addressStep, 99))
	require.True(t, table.Set("x", 1))
	require.True(t, table.Set("y", 2))

	x, ok := table.AddressOf("x")
	require.True(t, ok)
	y, ok := table.AddressOf("y")
	require.True(t, ok)

	assert.Equal(t, uint32(addressBase), x)
	assert.Equal(t, uint32(addressBase+2*addressStep), y, "raw write target is skipped")

	v, ok := table.GetAt(y)
	require.True(t, ok)
	assert.Equal(t, uint16(2), v)
}

func TestSymbolTableInsertRejectsDuplicates(t *testing.T) {
	table := NewSymbolTable(8)

	require.True(t, table.Insert(0x100, "a", 1))
	assert.False(t, table.Insert(0x100, "b", 2))
	assert.False(t, table.Insert(0x102, "a", 3))
	assert.True(t, table.Insert(0x104, "", 4))
}

func TestSymbolTableSnapshotIsSorted(t *testing.T) {
	table := NewSymbolTable(0)
	assert.Equal(t, DefaultSymbolTableSize, table.Cap())

	table.WriteAt(0x9000, 3)
	table.Set("first", 1)
	table.WriteAt(0x0002, 2)

	snap := table.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint32(0x0002), snap[0].Address)
	assert.Equal(t, "first", snap[1].Name)
	assert.Equal(t, uint32(0x9000), snap[2].Address)
}

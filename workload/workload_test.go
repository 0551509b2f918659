package workload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	in := `# name,memory,instructions
alpha,512,10
beta, 0
gamma,1024,0
`
	entries, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "alpha", Memory: 512, Instructions: 10},
		{Name: "beta"},
		{Name: "gamma", Memory: 1024},
	}, entries)
}

func TestLoadRejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"one field", "alpha\n"},
		{"four fields", "alpha,1,2,3\n"},
		{"empty name", ",256\n"},
		{"not a number", "alpha,lots\n"},
		{"negative memory", "alpha,-1\n"},
		{"negative count", "alpha,256,-4\n"},
		{"duplicate", "alpha,256\nalpha,512\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	entries, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen(t *testing.T) {
	_, _, err := Open()
	assert.ErrorIs(t, err, ErrInvalidArgs)
	_, _, err = Open("a.csv", "b.csv")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, _, err = Open(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "work.csv")
	require.NoError(t, os.WriteFile(path, []byte("alpha,256,3\n"), 0o644))
	f, closeFn, err := Open(path)
	require.NoError(t, err)
	defer closeFn()

	entries, err := Load(f)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "alpha", Memory: 256, Instructions: 3}}, entries)
}

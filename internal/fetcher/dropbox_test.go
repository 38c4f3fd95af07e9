package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want FileKind
	}{
		{"catalog.pdf", KindDocument},
		{"pricelist.XLSX", KindDocument},
		{"export.csv", KindDocument},
		{"PROD001.jpg", KindImage},
		{"PROD001_side.JPEG", KindImage},
		{"PROD002.png", KindImage},
		{"PROD003.webp", KindImage},
		{"notes.txt", KindUnknown},
		{"archive.zip", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.name), tt.name)
	}
}

func TestAlreadySynced(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.pdf")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	assert.True(t, alreadySynced(path, 5))
	assert.False(t, alreadySynced(path, 9)) // partial download, refetch
	assert.False(t, alreadySynced(filepath.Join(dir, "missing.pdf"), 5))
}

func TestNew_DefaultTimeout(t *testing.T) {
	t.Parallel()

	d := New(Config{Host: "ftp.example.com"})
	assert.NotZero(t, d.cfg.Timeout)
}

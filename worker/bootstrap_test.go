package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBootstrap(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		entry   string
		preload []string
		wantErr bool
	}{
		{name: "entry only", in: "serve\n", entry: EntryServe, preload: []string{}},
		{name: "entry with preload", in: "serve numpy pandas\n", entry: EntryServe, preload: []string{"numpy", "pandas"}},
		{name: "preload across lines", in: "cache\nnumpy\npandas\n", entry: EntryCache, preload: []string{"numpy", "pandas"}},
		{name: "comments and blanks", in: "# start instruction\n\nforkserver # spawn mode\n", entry: EntryForkServer, preload: []string{}},
		{name: "empty file", in: "", wantErr: true},
		{name: "comment only", in: "# nothing\n", wantErr: true},
		{name: "unknown entry", in: "launch numpy\n", wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			boot, err := ParseBootstrap([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.entry, boot.Entry)
			assert.Equal(t, tc.preload, boot.Preload)
		})
	}
}

func TestLoadBootstrap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap")
	require.NoError(t, os.WriteFile(path, []byte("cache numpy\n"), 0644))

	boot, raw, err := LoadBootstrap(path)
	require.NoError(t, err)
	assert.Equal(t, EntryCache, boot.Entry)
	assert.Equal(t, []string{"numpy"}, boot.Preload)
	assert.Equal(t, "cache numpy\n", string(raw))
}

func TestLoadBootstrapKeepsContentOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap")
	require.NoError(t, os.WriteFile(path, []byte("warp drive\n"), 0644))

	_, raw, err := LoadBootstrap(path)
	require.Error(t, err)
	// the raw content must survive for the failure diagnostic
	assert.Equal(t, "warp drive\n", string(raw))
}

func TestLoadBootstrapMissingFile(t *testing.T) {
	_, _, err := LoadBootstrap(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

package pdfingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDownloader_FetchAndCache(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, 5*time.Second, zap.NewNop())

	local, size, err := d.Fetch(context.Background(), server.URL+"/docs/factsheet.pdf")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "factsheet.pdf"), local)
	require.Equal(t, int64(13), size)
	require.Equal(t, 1, hits)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(data))

	// Second fetch is served from disk.
	local2, size2, err := d.Fetch(context.Background(), server.URL+"/docs/factsheet.pdf")
	require.NoError(t, err)
	require.Equal(t, local, local2)
	require.Equal(t, size, size2)
	require.Equal(t, 1, hits)
}

func TestDownloader_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := NewDownloader(t.TempDir(), 5*time.Second, zap.NewNop())
	_, _, err := d.Fetch(context.Background(), server.URL+"/docs/gone.pdf")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 404")
}

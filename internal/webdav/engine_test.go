package webdav

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/juste-un-gars/lifetracker_sync/internal/scanner"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

func TestEngine_FirstSyncCreatesDirectory(t *testing.T) {
	s, srv := newDAVServer(t)
	c := newTestClient(t, srv.URL+"/dav/")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`{"tasks":[]}`), 0644))
	local, err := scanner.NewScanner(scanner.Config{Root: root}, zap.NewNop())
	require.NoError(t, err)

	engine, err := syncpkg.NewEngine(webdavConfig(srv.URL+"/dav/", "App"), c, local, nil, zap.NewNop())
	require.NoError(t, err)
	engine.SetRetryPolicy(syncpkg.NoRetryPolicy())

	first, err := engine.Sync(context.Background(), &syncpkg.SyncRequest{})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.Uploaded)

	got, ok := s.file("/dav/App/data.json")
	require.True(t, ok)
	assert.Equal(t, `{"tasks":[]}`, got)
	assert.Contains(t, s.log(), "MKCOL /dav/App")

	second, err := engine.Sync(context.Background(), &syncpkg.SyncRequest{LastSync: first.EndTime.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Uploaded)
	assert.Equal(t, 0, second.Downloaded)
}

package webdav

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestConnection(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *davServer)
		want  bool
		// requests expected somewhere in the server log
		expect []string
	}{
		{
			name:  "existing directory",
			setup: func(s *davServer) { s.addDir("/dav/App") },
			want:  true,
		},
		{
			name:   "missing directory is created",
			setup:  func(s *davServer) {},
			want:   true,
			expect: []string{"MKCOL /dav/App"},
		},
		{
			name: "created but still not listable",
			setup: func(s *davServer) {
				s.setStatus("PROPFIND", "/dav/App", http.StatusNotFound)
			},
			want:   true,
			expect: []string{"MKCOL /dav/App"},
		},
		{
			name:  "wrong password",
			setup: func(s *davServer) { s.pass = "other" },
			want:  false,
		},
		{
			name: "root 404 still reachable",
			setup: func(s *davServer) {
				s.addDir("/dav/App")
				s.setStatus("PROPFIND", "/dav", http.StatusNotFound)
			},
			want: true,
		},
		{
			name: "root forbidden still reachable",
			setup: func(s *davServer) {
				s.addDir("/dav/App")
				s.setStatus("PROPFIND", "/dav", http.StatusForbidden)
			},
			want: true,
		},
		{
			name: "directory restricted",
			setup: func(s *davServer) {
				s.setStatus("PROPFIND", "/dav/App", http.StatusForbidden)
			},
			want: true,
		},
		{
			name: "directory conflict",
			setup: func(s *davServer) {
				s.setStatus("PROPFIND", "/dav/App", http.StatusConflict)
			},
			want: true,
		},
		{
			name: "directory cannot be created",
			setup: func(s *davServer) {
				s.setStatus("MKCOL", "/dav/App", http.StatusForbidden)
			},
			want: false,
		},
		{
			name: "server error on root",
			setup: func(s *davServer) {
				s.setStatus("PROPFIND", "/dav", http.StatusInternalServerError)
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, srv := newDAVServer(t)
			tt.setup(s)
			c := newTestClient(t, srv.URL+"/dav/")

			ok, err := c.TestConnection(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			log := s.log()
			for _, req := range tt.expect {
				assert.Contains(t, log, req)
			}
		})
	}
}

func TestTestConnection_Unreachable(t *testing.T) {
	_, srv := newDAVServer(t)
	c := newTestClient(t, srv.URL+"/dav/")
	srv.Close()

	ok, err := c.TestConnection(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTestConnection_Cancelled(t *testing.T) {
	_, srv := newDAVServer(t)
	c := newTestClient(t, srv.URL+"/dav/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := c.TestConnection(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

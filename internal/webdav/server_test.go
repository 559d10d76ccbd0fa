package webdav

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// davServer is a minimal WebDAV server for one user
type davServer struct {
	t *testing.T

	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
	mtime map[string]time.Time

	// status overrides by "METHOD path"
	override map[string]int
	requests []string

	user, pass string
}

func newDAVServer(t *testing.T) (*davServer, *httptest.Server) {
	t.Helper()
	s := &davServer{
		t:        t,
		dirs:     map[string]bool{"/": true, "/dav": true},
		files:    make(map[string][]byte),
		mtime:    make(map[string]time.Time),
		override: make(map[string]int),
		user:     "u",
		pass:     "p",
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *davServer) addDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[p] = true
}

func (s *davServer) addFile(p, content string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = []byte(content)
	s.mtime[p] = modified
}

func (s *davServer) file(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	return string(data), ok
}

func (s *davServer) setStatus(method, p string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[method+" "+p] = code
}

func (s *davServer) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := strings.TrimRight(r.URL.Path, "/")
	if p == "" {
		p = "/"
	}
	s.requests = append(s.requests, r.Method+" "+p)

	user, pass, ok := r.BasicAuth()
	if !ok || user != s.user || pass != s.pass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if code, ok := s.override[r.Method+" "+p]; ok {
		w.WriteHeader(code)
		return
	}

	switch r.Method {
	case "PROPFIND":
		if r.Header.Get("Content-Type") != "application/xml" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !s.dirs[p] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, s.listing(p, r.Header.Get("Depth")))

	case "MKCOL":
		if s.dirs[p] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		parent := p[:strings.LastIndex(p, "/")]
		if parent == "" {
			parent = "/"
		}
		if !s.dirs[parent] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.dirs[p] = true
		w.WriteHeader(http.StatusCreated)

	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		s.files[p] = data
		s.mtime[p] = time.Now().UTC()
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		data, ok := s.files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)

	case http.MethodDelete:
		if _, ok := s.files[p]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.files, p)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *davServer) listing(dir, depth string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?><d:multistatus xmlns:d="DAV:">`)
	fmt.Fprintf(&b, `<d:response><d:href>%s/</d:href><d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, dir)

	if depth == "1" {
		var names []string
		for f := range s.files {
			if strings.HasPrefix(f, dir+"/") && !strings.Contains(strings.TrimPrefix(f, dir+"/"), "/") {
				names = append(names, f)
			}
		}
		sort.Strings(names)
		for _, f := range names {
			fmt.Fprintf(&b, `<d:response><d:href>%s</d:href><d:propstat><d:prop>`+
				`<d:getcontentlength>%d</d:getcontentlength>`+
				`<d:getlastmodified>%s</d:getlastmodified>`+
				`<d:getetag>"%x"</d:getetag>`+
				`<d:resourcetype/></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`,
				f, len(s.files[f]), s.mtime[f].UTC().Format(http.TimeFormat), len(s.files[f]))
		}
	}
	b.WriteString(`</d:multistatus>`)
	return b.String()
}

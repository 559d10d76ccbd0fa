package sync

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

type fakeFile struct {
	data     []byte
	modified time.Time
}

// fakeProvider is an in-memory remote with a flat directory under /dav/App
type fakeProvider struct {
	mu    sync.Mutex
	files map[string]*fakeFile
	now   func() time.Time

	failUpload   map[string]error
	failDownload map[string]error
	failList     error

	uploads   []string
	downloads []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		files:        make(map[string]*fakeFile),
		now:          time.Now,
		failUpload:   make(map[string]error),
		failDownload: make(map[string]error),
	}
}

func (p *fakeProvider) put(name, content string, modified time.Time) {
	p.files[name] = &fakeFile{data: []byte(content), modified: modified}
}

func (p *fakeProvider) content(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.files[name]; ok {
		return string(f.data)
	}
	return ""
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) TestConnection(ctx context.Context) (bool, error) { return true, nil }

func (p *fakeProvider) ListRemoteFiles(ctx context.Context, dir string) ([]*SyncItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failList != nil {
		return nil, p.failList
	}

	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]*SyncItem, 0, len(names))
	for _, name := range names {
		f := p.files[name]
		modified := f.modified
		href := "/dav/App/" + name
		items = append(items, &SyncItem{
			ID:             href,
			Name:           name,
			RemotePath:     href,
			Size:           int64(len(f.data)),
			RemoteModified: &modified,
			Hash:           NameSizeHash{}.Hash(name, int64(len(f.data)), ""),
			Status:         StatusIdle,
			Direction:      DirectionBidirectional,
		})
	}
	return items, nil
}

func (p *fakeProvider) UploadFile(ctx context.Context, item *SyncItem, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := path.Base(item.RemotePath)
	if err := p.failUpload[name]; err != nil {
		return err
	}
	p.files[name] = &fakeFile{data: append([]byte(nil), data...), modified: p.now()}
	p.uploads = append(p.uploads, name)
	return nil
}

func (p *fakeProvider) DownloadFile(ctx context.Context, item *SyncItem) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := path.Base(item.RemotePath)
	if err := p.failDownload[name]; err != nil {
		return nil, err
	}
	f, ok := p.files[name]
	if !ok {
		return nil, StatusError("GET", item.RemotePath, 404)
	}
	p.downloads = append(p.downloads, name)
	return append([]byte(nil), f.data...), nil
}

func (p *fakeProvider) DeleteRemoteFile(ctx context.Context, item *SyncItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, path.Base(item.RemotePath))
	return nil
}

func (p *fakeProvider) CreateRemoteDirectory(ctx context.Context, dir string) error { return nil }

func (p *fakeProvider) GetFileMetadata(ctx context.Context, name string) (*SyncItem, error) {
	items, _ := p.ListRemoteFiles(ctx, "")
	for _, it := range items {
		if it.Name == path.Base(name) {
			return it, nil
		}
	}
	return nil, SyncErr("metadata", ErrNotFound)
}

func (p *fakeProvider) Close() error { return nil }

// fakeLocal is an in-memory LocalStore
type fakeLocal struct {
	mu    sync.Mutex
	files map[string]*fakeFile
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{files: make(map[string]*fakeFile)}
}

func (l *fakeLocal) put(name, content string, modified time.Time) {
	l.files[name] = &fakeFile{data: []byte(content), modified: modified}
}

func (l *fakeLocal) content(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.files[name]; ok {
		return string(f.data)
	}
	return ""
}

func (l *fakeLocal) List(ctx context.Context) ([]*SyncItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]*SyncItem, 0, len(l.files))
	for name, f := range l.files {
		items = append(items, &SyncItem{
			ID:            name,
			Name:          name,
			LocalPath:     "/data/" + name,
			Size:          int64(len(f.data)),
			LocalModified: f.modified,
			Hash:          NameSizeHash{}.Hash(name, int64(len(f.data)), ""),
			Status:        StatusIdle,
			Direction:     DirectionBidirectional,
		})
	}
	return items, nil
}

func (l *fakeLocal) Read(ctx context.Context, item *SyncItem) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.files[item.Name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), f.data...), nil
}

func (l *fakeLocal) Write(ctx context.Context, name string, data []byte, modTime time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[name] = &fakeFile{data: append([]byte(nil), data...), modified: modTime}
	return nil
}

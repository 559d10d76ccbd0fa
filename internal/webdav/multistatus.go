package webdav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

const (
	propfindAllProp      = `<?xml version="1.0" encoding="utf-8" ?><D:propfind xmlns:D="DAV:"><D:allprop/></D:propfind>`
	propfindResourceType = `<?xml version="1.0" encoding="utf-8" ?><D:propfind xmlns:D="DAV:"><D:prop><D:resourcetype/></D:prop></D:propfind>`
)

// Tags carry no namespace, so elements match by local name under any prefix.
type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Prop   prop   `xml:"prop"`
	Status string `xml:"status"`
}

type prop struct {
	ContentLength string       `xml:"getcontentlength"`
	LastModified  string       `xml:"getlastmodified"`
	ETag          string       `xml:"getetag"`
	ResourceType  resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

// lastModifiedLayouts are tried in order, first match wins
var lastModifiedLayouts = []string{
	http.TimeFormat,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// parseMultistatus turns a PROPFIND body into file items. Collections and
// hrefs ending in "/" are skipped.
func parseMultistatus(body []byte, hash syncpkg.HashStrategy) ([]*syncpkg.SyncItem, error) {
	var ms multistatus
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&ms); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}

	items := make([]*syncpkg.SyncItem, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		href := strings.TrimSpace(r.Href)
		if href == "" || strings.HasSuffix(href, "/") {
			continue
		}

		p := r.mergedProp()
		if p.ResourceType.Collection != nil {
			continue
		}

		name := nameFromHref(href)
		size, err := strconv.ParseInt(strings.TrimSpace(p.ContentLength), 10, 64)
		if err != nil {
			size = 0
		}
		etag := strings.TrimSpace(p.ETag)

		items = append(items, &syncpkg.SyncItem{
			ID:             href,
			Name:           name,
			RemotePath:     href,
			Size:           size,
			RemoteModified: parseLastModified(p.LastModified),
			Hash:           hash.Hash(name, size, etag),
			ETag:           etag,
			Status:         syncpkg.StatusIdle,
			Direction:      syncpkg.DirectionBidirectional,
		})
	}
	return items, nil
}

// mergedProp folds the propstat blocks of one response, first value wins
func (r response) mergedProp() prop {
	var out prop
	for _, ps := range r.Propstats {
		p := ps.Prop
		if out.ContentLength == "" {
			out.ContentLength = p.ContentLength
		}
		if out.LastModified == "" {
			out.LastModified = p.LastModified
		}
		if out.ETag == "" {
			out.ETag = p.ETag
		}
		if out.ResourceType.Collection == nil {
			out.ResourceType.Collection = p.ResourceType.Collection
		}
	}
	return out
}

// nameFromHref returns the unescaped basename, or the whole href when that fails
func nameFromHref(href string) string {
	trimmed := strings.TrimRight(href, "/")
	base := path.Base(trimmed)
	if base == "." || base == "/" || base == "" {
		return href
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}

func parseLastModified(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range lastModifiedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

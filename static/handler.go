// File: static/handler.go
// Package static serves files from a document root in response to
// HTTPRequest events.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package static

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/protocol"
)

const sendChunkSize = 4096

// Handler serves GET and HEAD requests from DocumentRoot. Requests for a
// directory are answered with its IndexFile.
type Handler struct {
	DocumentRoot string
	IndexFile    string // default "index.html"
	DefaultType  string // default "application/octet-stream"
	MimeTypes    map[string]string
	Logger       *slog.Logger
}

// New returns a handler for root with the default settings.
func New(root string) *Handler {
	return &Handler{DocumentRoot: root}
}

// HandleEvent serves HTTPRequest events and ignores everything else.
func (h *Handler) HandleEvent(c *protocol.Conn, ev api.Event) error {
	req, ok := ev.(api.HTTPRequest)
	if !ok {
		return nil
	}
	return h.Serve(c, req.Msg)
}

// Serve answers one request.
func (h *Handler) Serve(c *protocol.Conn, msg *api.HTTPMessage) error {
	head := msg.Method.EqualFold("HEAD")
	if !head && !msg.Method.EqualFold("GET") {
		return c.SendHTTPResponse(http.StatusMethodNotAllowed,
			[]protocol.HeaderField{{Name: "Allow", Value: "GET, HEAD"}}, nil)
	}

	rel, err := url.PathUnescape(msg.URI.String())
	if err != nil || !strings.HasPrefix(rel, "/") {
		return h.status(c, http.StatusBadRequest)
	}
	if hasDotDot(rel) {
		h.logger().Warn("path traversal rejected", "uri", msg.URI.String())
		return h.status(c, http.StatusForbidden)
	}
	clean := path.Clean(rel)
	full := filepath.Join(h.DocumentRoot, filepath.FromSlash(clean))

	info, err := os.Stat(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return h.status(c, http.StatusNotFound)
	case err != nil:
		h.logger().Error("stat failed", "path", full, "err", err)
		return h.status(c, http.StatusInternalServerError)
	}
	if info.IsDir() {
		if !strings.HasSuffix(rel, "/") {
			return c.SendHTTPResponse(http.StatusFound,
				[]protocol.HeaderField{{Name: "Location", Value: clean + "/"}}, nil)
		}
		full = filepath.Join(full, h.indexFile())
		if info, err = os.Stat(full); err != nil || !info.Mode().IsRegular() {
			return h.status(c, http.StatusForbidden)
		}
	}

	modified := info.ModTime().UTC().Truncate(time.Second)
	if ims, ok := msg.FindHeader("If-Modified-Since"); ok {
		if t, err := http.ParseTime(ims.String()); err == nil && !modified.After(t) {
			return c.SendHTTPResponse(http.StatusNotModified, nil, nil)
		}
	}

	headers := []protocol.HeaderField{
		{Name: "Content-Type", Value: h.contentType(full)},
		{Name: "Last-Modified", Value: modified.Format(http.TimeFormat)},
		{Name: "Content-Length", Value: strconv.FormatInt(info.Size(), 10)},
	}
	if head {
		return c.SendHTTPResponseHead(http.StatusOK, headers)
	}
	f, err := os.Open(full)
	if err != nil {
		h.logger().Error("open failed", "path", full, "err", err)
		return h.status(c, http.StatusInternalServerError)
	}
	defer f.Close()
	if err := c.SendHTTPResponseHead(http.StatusOK, headers); err != nil {
		return err
	}
	return sendFile(c, f, info.Size())
}

// sendFile queues exactly size bytes of r in sendChunkSize pieces. A file
// that shrank after the head was sent ends the connection.
func sendFile(c *protocol.Conn, r io.Reader, size int64) error {
	buf := make([]byte, sendChunkSize)
	for size > 0 {
		n := int64(len(buf))
		if size < n {
			n = size
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("static: short read: %w", err)
		}
		if err := c.Send(buf[:n]); err != nil {
			return err
		}
		size -= n
	}
	return nil
}

func (h *Handler) status(c *protocol.Conn, code int) error {
	return c.SendHTTPResponse(code,
		[]protocol.HeaderField{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}},
		[]byte(http.StatusText(code)+"\n"))
}

func (h *Handler) contentType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if t, ok := h.MimeTypes[ext]; ok {
		return t
	}
	if t, ok := defaultMimeTypes[ext]; ok {
		return t
	}
	if h.DefaultType != "" {
		return h.DefaultType
	}
	return "application/octet-stream"
}

func (h *Handler) indexFile() string {
	if h.IndexFile != "" {
		return h.IndexFile
	}
	return "index.html"
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// hasDotDot reports whether p contains a ".." path element.
func hasDotDot(p string) bool {
	for _, elem := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return true
		}
	}
	return false
}

var defaultMimeTypes = map[string]string{
	"css":   "text/css; charset=utf-8",
	"gif":   "image/gif",
	"htm":   "text/html; charset=utf-8",
	"html":  "text/html; charset=utf-8",
	"ico":   "image/x-icon",
	"jpeg":  "image/jpeg",
	"jpg":   "image/jpeg",
	"js":    "text/javascript; charset=utf-8",
	"json":  "application/json",
	"mp4":   "video/mp4",
	"pdf":   "application/pdf",
	"png":   "image/png",
	"svg":   "image/svg+xml",
	"txt":   "text/plain; charset=utf-8",
	"wasm":  "application/wasm",
	"webp":  "image/webp",
	"woff2": "font/woff2",
	"xml":   "text/xml; charset=utf-8",
	"zip":   "application/zip",
}

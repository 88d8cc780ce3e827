// Package gatewaytest runs an in-process stand-in for the document-QA backend.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/pkg/logger"
)

const (
	UploadPath = "/upload_pdfs/"
	ChatPath   = "/chat/"
	EndPath    = "/end_session/"
)

type canned struct {
	status int
	body   string
}

// Gate holds every request to one path until released.
type Gate struct {
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Backend records every call and answers with canned or default responses.
// Defaults: upload returns session ids s1, s2, ...; chat echoes the query;
// end_session acknowledges.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	canned   map[string]canned
	gates    map[string]*Gate
	uploads  [][]string
	queries  []url.Values
	ended    []string
	sessions int
}

func NewBackend(t testing.TB) *Backend {
	b := &Backend{
		calls:  make(map[string]int),
		canned: make(map[string]canned),
		gates:  make(map[string]*Gate),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(UploadPath, b.handleUpload)
	mux.HandleFunc(ChatPath, b.handleChat)
	mux.HandleFunc(EndPath, b.handleEnd)
	b.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		b.mu.Lock()
		for _, g := range b.gates {
			g.Release()
		}
		b.mu.Unlock()
		b.Server.Close()
	})
	return b
}

func (b *Backend) URL() string {
	return b.Server.URL
}

// Gateway returns a real HTTP gateway pointed at this backend.
func (b *Backend) Gateway() *gateway.HTTPGateway {
	return gateway.NewHTTPGateway(b.URL(), 2*time.Second, logger.NewNopLogger())
}

// RespondWith makes every later call to path answer with status and body.
func (b *Backend) RespondWith(path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canned[path] = canned{status: status, body: body}
}

// Reset restores the default response for path.
func (b *Backend) Reset(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.canned, path)
}

// Block holds calls to path until the returned gate is released.
func (b *Backend) Block(path string) *Gate {
	g := &Gate{Entered: make(chan struct{}, 16), release: make(chan struct{})}
	b.mu.Lock()
	b.gates[path] = g
	b.mu.Unlock()
	return g
}

func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// WaitCalls polls until path has seen at least n calls.
func (b *Backend) WaitCalls(path string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Calls(path) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b.Calls(path) >= n
}

// Uploaded lists the file names of every upload call, in order.
func (b *Backend) Uploaded() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.uploads...)
}

func (b *Backend) Queries() []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.queries...)
}

// Ended lists session ids passed to end_session, in order.
func (b *Backend) Ended() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ended...)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
		}
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, names)
	b.mu.Unlock()

	b.serve(w, UploadPath, func() (int, interface{}) {
		b.mu.Lock()
		b.sessions++
		id := fmt.Sprintf("s%d", b.sessions)
		b.mu.Unlock()
		return http.StatusOK, map[string]string{"session_id": id}
	})
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := r.PostForm

	b.mu.Lock()
	b.queries = append(b.queries, form)
	b.mu.Unlock()

	b.serve(w, ChatPath, func() (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"answer":           "echo: " + form.Get("query"),
			"source_documents": []interface{}{},
			"session_id":       form.Get("session_id"),
		}
	})
}

func (b *Backend) handleEnd(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	id := r.PostForm.Get("session_id")

	b.mu.Lock()
	b.ended = append(b.ended, id)
	b.mu.Unlock()

	b.serve(w, EndPath, func() (int, interface{}) {
		return http.StatusOK, map[string]string{"message": "Session ended and data cleared."}
	})
}

func (b *Backend) serve(w http.ResponseWriter, path string, fallback func() (int, interface{})) {
	b.mu.Lock()
	b.calls[path]++
	gate := b.gates[path]
	c, hasCanned := b.canned[path]
	b.mu.Unlock()

	if gate != nil {
		select {
		case gate.Entered <- struct{}{}:
		default:
		}
		<-gate.release
	}

	w.Header().Set("Content-Type", "application/json")
	if hasCanned {
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(c.body))
		return
	}

	status, body := fallback()
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package fetchtest serves canned pages under arbitrary host names so crawler
// code can be tested against realistic blog URLs.
package fetchtest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Site is an httptest server that routes by absolute URL ("http://host/path?query")
type Site struct {
	Server *httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

// NewSite starts a Site that is closed when the test ends
func NewSite(t testing.TB) *Site {
	t.Helper()
	s := &Site{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]int),
	}
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Server.Close)
	return s
}

// Handle registers h for rawURL
func (s *Site) Handle(rawURL string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[rawURL] = h
}

// HTML serves body as a UTF-8 HTML page at rawURL
func (s *Site) HTML(rawURL, body string) {
	s.Handle(rawURL, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	})
}

// Bytes serves body with the given content type at rawURL
func (s *Site) Bytes(rawURL, contentType string, body []byte) {
	s.Handle(rawURL, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	})
}

// Hits returns how many requests reached rawURL
func (s *Site) Hits(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[rawURL]
}

// ServeHTTP implements http.Handler; unknown URLs get 404
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := "http://" + r.Host + r.URL.RequestURI()
	s.mu.Lock()
	s.hits[key]++
	h, ok := s.routes[key]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// Client returns an http.Client that sends every request to the Site whatever its host
func (s *Site) Client() *http.Client {
	addr := s.Server.Listener.Addr().String()
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			DisableKeepAlives: true,
		},
	}
}

// Disconnect is a handler that closes the connection without answering
func Disconnect(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("fetchtest: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	conn.Close()
}

// SPDX-License-Identifier: MIT
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philcrump/limesdr-fft/internal/analysis"
	"github.com/philcrump/limesdr-fft/internal/archive"
	"github.com/philcrump/limesdr-fft/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAveraging struct {
	depth, max int
}

func (f *fakeAveraging) Size() int            { return 1024 }
func (f *fakeAveraging) AverageDepth() int    { return f.depth }
func (f *fakeAveraging) MaxAverageDepth() int { return f.max }
func (f *fakeAveraging) SetAverageDepth(k int) error {
	if k < 0 || k > f.max {
		return fmt.Errorf("%w: %d", analysis.ErrAverageDepth, k)
	}
	f.depth = k
	return nil
}

type fakeViewers struct{ n int }

func (f *fakeViewers) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}
func (f *fakeViewers) Count() int { return f.n }

type fakeArchive struct {
	snapshots []archive.Snapshot
	limit     int
	err       error
}

func (f *fakeArchive) Recent(_ context.Context, limit int) ([]archive.Snapshot, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.snapshots) {
		return f.snapshots[:limit], nil
	}
	return f.snapshots, nil
}

func newTestServer(t *testing.T, htdocs string) (*Server, *fakeAveraging) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	avg := &fakeAveraging{depth: 10, max: 100}
	s, err := NewServer(Options{
		Listen:    "127.0.0.1:0",
		HTDocs:    htdocs,
		Averaging: avg,
		Viewers:   &fakeViewers{n: 3},
		Sequence:  func() uint64 { return 42 },
		Pipeline:  func() pipeline.Stats { return pipeline.Stats{Frames: 7} },
	})
	require.NoError(t, err)
	return s, avg
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, uint64(42), st.Sequence)
	assert.Equal(t, 1024, st.FFTSize)
	assert.Equal(t, 10, st.AverageDepth)
	assert.Equal(t, 100, st.MaxAverageDepth)
	assert.Equal(t, 3, st.Viewers)
	assert.Equal(t, uint64(7), st.Pipeline.Frames)
	assert.NotEmpty(t, st.Build.Version)
}

func TestSetAverage(t *testing.T) {
	s, avg := newTestServer(t, "")

	w := do(s, http.MethodPut, "/api/average", `{"depth": 50}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 50, avg.depth)

	w = do(s, http.MethodPut, "/api/average", `{"depth": 0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, avg.depth)

	w = do(s, http.MethodGet, "/api/average", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"depth":0,"max_depth":100}`, w.Body.String())
}

func TestSetAverageRejects(t *testing.T) {
	s, avg := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"depth": 101}`},
		{"negative", `{"depth": -1}`},
		{"missing", `{}`},
		{"malformed", `{"depth":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPut, "/api/average", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, 10, avg.depth)
}

func TestViewerRoute(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(s, http.MethodGet, "/fft", "")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStaticViewer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>viewer</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "viewer.js"), []byte("// js"), 0o644))
	s, _ := newTestServer(t, dir)

	w := do(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "viewer")

	w = do(s, http.MethodGet, "/static/viewer.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/status"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestArchiveDisabled(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(s, http.MethodGet, "/api/archive", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArchiveRecent(t *testing.T) {
	s, _ := newTestServer(t, "")
	at := time.UnixMilli(1700000000000).UTC()
	fa := &fakeArchive{snapshots: []archive.Snapshot{
		{Identifier: "rx", Sequence: 9, FFTSize: 4, AverageDepth: 10, CapturedAt: at, Frame: []byte{1, 2, 3, 4}},
		{Identifier: "rx", Sequence: 5, FFTSize: 4, AverageDepth: 10, CapturedAt: at, Frame: []byte{5, 6, 7, 8}},
	}}
	s.opts.Archive = fa

	w := do(s, http.MethodGet, "/api/archive", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultArchiveLimit, fa.limit)

	var got []archive.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(9), got[0].Sequence)
	assert.Equal(t, []byte{1, 2, 3, 4}, got[0].Frame)
	assert.True(t, at.Equal(got[0].CapturedAt))

	w = do(s, http.MethodGet, "/api/archive?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fa.limit)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}

func TestArchiveEmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t, "")
	s.opts.Archive = &fakeArchive{}
	w := do(s, http.MethodGet, "/api/archive", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestArchiveRejects(t *testing.T) {
	s, _ := newTestServer(t, "")
	fa := &fakeArchive{}
	s.opts.Archive = fa
	for _, q := range []string{"0", "-1", "101", "abc"} {
		w := do(s, http.MethodGet, "/api/archive?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", q)
	}
	assert.Zero(t, fa.limit)

	fa.err = fmt.Errorf("database is locked")
	w := do(s, http.MethodGet, "/api/archive", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

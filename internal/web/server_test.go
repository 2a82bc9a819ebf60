package web

import (
	"bytes"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tile-compressor-go/internal/config"
	"tile-compressor-go/internal/logger"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a server whose output root is a fresh temp dir.
func newTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.OutputRoot = t.TempDir()
	s := NewServer(cfg, logger.Discard())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, cfg.Server.OutputRoot
}

func decode(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func writeImage(t *testing.T, dir, name string) {
	t.Helper()
	img := imaging.New(9, 9, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
}

func TestStatusIdle(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.True(t, out.Success)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, false, data["running"])
	assert.Nil(t, data["statistics"])
}

func TestCompressRequestValidation(t *testing.T) {
	_, ts, root := newTestServer(t)
	out := filepath.Join(root, "tiles")
	neg := -1

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "missing input", body: CompressRequest{OutputDir: out}},
		{name: "missing output", body: CompressRequest{InputDir: t.TempDir()}},
		{name: "bad size", body: CompressRequest{InputDir: t.TempDir(), OutputDir: out, Size: "big"}},
		{name: "negative expected", body: CompressRequest{InputDir: t.TempDir(), OutputDir: out, Expected: &neg}},
		{name: "input not found", body: CompressRequest{InputDir: filepath.Join(t.TempDir(), "x"), OutputDir: out}},
		{name: "output outside root", body: CompressRequest{InputDir: t.TempDir(), OutputDir: t.TempDir()}},
		{name: "output escapes root", body: CompressRequest{InputDir: t.TempDir(), OutputDir: filepath.Join(root, "..", "tiles")}},
		{name: "not json", body: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/compress", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, decode(t, resp).Success)
		})
	}
}

func TestCompressConflict(t *testing.T) {
	s, ts, root := newTestServer(t)
	s.operationMutex.Lock()
	s.isRunning = true
	s.operationMutex.Unlock()

	resp := postJSON(t, ts.URL+"/api/compress", CompressRequest{InputDir: t.TempDir(), OutputDir: filepath.Join(root, "tiles")})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Operation already in progress", decode(t, resp).Error)
}

func TestCompressRunBroadcastsProgress(t *testing.T) {
	s, ts, root := newTestServer(t)
	in := t.TempDir()
	out := filepath.Join(root, "tiles")
	writeImage(t, in, "b2.png")
	writeImage(t, in, "b10.png")
	require.NoError(t, os.WriteFile(filepath.Join(in, "b3.jpg"), []byte("broken"), 0644))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait until the server has registered the client
	require.Eventually(t, func() bool {
		s.wsMutex.Lock()
		defer s.wsMutex.Unlock()
		return len(s.wsClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	expected := 5
	resp := postJSON(t, ts.URL+"/api/compress", CompressRequest{
		InputDir:  in,
		OutputDir: out,
		Size:      "4x4",
		Expected:  &expected,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Compression started", decode(t, resp).Message)

	var types []string
	var completed map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for completed == nil {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "compress_completed" {
			completed = msg.Data.(map[string]interface{})
		}
	}
	s.Wait()

	assert.Equal(t, []string{"compress_started", "tile_created", "tile_failed", "tile_created", "compress_completed"}, types)
	assert.Equal(t, float64(2), completed["produced"])
	assert.Equal(t, float64(3), completed["missing"])

	statusResp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	data := decode(t, statusResp).Data.(map[string]interface{})
	assert.Equal(t, false, data["running"])
	last := data["last_run"].(map[string]interface{})
	assert.Equal(t, float64(2), last["produced"])
	assert.Equal(t, float64(1), last["failed"])

	tilesResp, err := http.Get(ts.URL + "/api/tiles?dir=" + url.QueryEscape(out))
	require.NoError(t, err)
	tiles := decode(t, tilesResp).Data.([]interface{})
	require.Len(t, tiles, 2)
	assert.Equal(t, "tile_0.jpg", tiles[0].(map[string]interface{})["name"])
	assert.Equal(t, "tile_1.jpg", tiles[1].(map[string]interface{})["name"])

	statsResp, err := http.Get(ts.URL + "/api/statistics")
	require.NoError(t, err)
	stats := decode(t, statsResp).Data.(map[string]interface{})
	assert.Contains(t, stats["summary"], "Written: 2")
	assert.Contains(t, stats["errors"], "b3.jpg")
}

func TestListTilesNaturalOrder(t *testing.T) {
	_, ts, root := newTestServer(t)
	dir := filepath.Join(root, "set")
	require.NoError(t, os.Mkdir(dir, 0755))
	for _, name := range []string{"tile_10.jpg", "tile_2.jpg", "tile_1.jpg", "other.jpg", "tile_3.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	resp, err := http.Get(ts.URL + "/api/tiles?dir=" + url.QueryEscape(dir))
	require.NoError(t, err)
	tiles := decode(t, resp).Data.([]interface{})

	var names []string
	for _, tl := range tiles {
		names = append(names, tl.(map[string]interface{})["name"].(string))
	}
	assert.Equal(t, []string{"tile_1.jpg", "tile_2.jpg", "tile_10.jpg"}, names)
}

func TestListTilesRejectsDirsOutsideRoot(t *testing.T) {
	_, ts, root := newTestServer(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "tile_0.jpg"), []byte("x"), 0644))

	for _, dir := range []string{
		"../etc",
		"/etc",
		outside,
		filepath.Join(root, "..", filepath.Base(outside)),
		root + "-sibling",
	} {
		t.Run(dir, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/tiles?dir=" + url.QueryEscape(dir))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode(t, resp).Error, "outside the output root")
		})
	}
}

func TestListTilesAcceptsRoot(t *testing.T) {
	_, ts, root := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "tile_0.jpg"), []byte("x"), 0644))

	resp, err := http.Get(ts.URL + "/api/tiles?dir=" + url.QueryEscape(root))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, resp).Data, 1)
}

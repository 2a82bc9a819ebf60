package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tile-compressor-go/internal/compressor"
	"tile-compressor-go/internal/config"
	"tile-compressor-go/internal/natsort"
	"tile-compressor-go/internal/statistics"
	"tile-compressor-go/internal/tile"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics
	lastSummary    *compressor.Summary
	done           chan struct{}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	Size      string `json:"size,omitempty"`
	Expected  *int   `json:"expected,omitempty"`
}

type TileInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")
	api.HandleFunc("/tiles", s.handleListTiles).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Wait blocks until the compression run started last has finished.
func (s *Server) Wait() {
	s.operationMutex.RLock()
	done := s.done
	s.operationMutex.RUnlock()
	if done != nil {
		<-done
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	summary := s.lastSummary
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	var last interface{}
	if summary != nil {
		last = map[string]interface{}{
			"produced": summary.Produced,
			"expected": summary.Expected,
			"missing":  summary.Missing(),
			"failed":   len(summary.Failed()),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
			"last_run":   last,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	params, err := s.compressParams(req)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(params.InputDir); err != nil || !info.IsDir() {
		s.writeError(w, "Input directory does not exist", http.StatusBadRequest)
		return
	}

	// Only one run at a time
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.currentStats = statistics.NewStatistics()
	s.done = make(chan struct{})
	stats, done := s.currentStats, s.done
	s.operationMutex.Unlock()

	go s.runCompressAsync(params, stats, done)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

func (s *Server) compressParams(req CompressRequest) (compressor.CompressionParams, error) {
	if req.InputDir == "" {
		return compressor.CompressionParams{}, fmt.Errorf("Input directory is required")
	}
	if req.OutputDir == "" {
		return compressor.CompressionParams{}, fmt.Errorf("Output directory is required")
	}

	size := s.cfg.CompressSize()
	if req.Size != "" {
		parsed, err := tile.ParseSize(req.Size)
		if err != nil {
			return compressor.CompressionParams{}, err
		}
		size = parsed
	}

	expected := s.cfg.Compress.Expected
	if req.Expected != nil {
		if *req.Expected < 0 {
			return compressor.CompressionParams{}, fmt.Errorf("Expected must not be negative")
		}
		expected = *req.Expected
	}

	outputDir, err := s.underOutputRoot(req.OutputDir)
	if err != nil {
		return compressor.CompressionParams{}, err
	}

	return compressor.CompressionParams{
		InputDir:   req.InputDir,
		OutputDir:  outputDir,
		Size:       size,
		Expected:   expected,
		Quality:    s.cfg.Compress.Quality,
		Filter:     s.cfg.Compress.Filter,
		Extensions: s.cfg.Compress.SupportedExtensions,
	}, nil
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  stats.GetSummary(),
			"errors":   stats.GetErrorSummary(),
			"counters": stats.Snapshot(),
		},
	})
}

func (s *Server) handleListTiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = s.cfg.Compress.OutputDir
	}

	dir, err := s.underOutputRoot(dir)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(entries))
	infos := make(map[string]TileInfo, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "tile_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		names = append(names, name)
		infos[name] = TileInfo{
			Name:         name,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		}
	}
	natsort.Sort(names)

	tiles := make([]TileInfo, 0, len(names))
	for _, n := range names {
		tiles = append(tiles, infos[n])
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    tiles,
	})
}

// underOutputRoot resolves dir against the working directory and returns its
// absolute path if it lies inside the configured output root.
func (s *Server) underOutputRoot(dir string) (string, error) {
	root, err := filepath.Abs(s.cfg.Server.OutputRoot)
	if err != nil {
		return "", fmt.Errorf("Invalid output root: %v", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("Invalid path: %v", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("Path %s is outside the output root", dir)
	}
	return abs, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runCompressAsync(params compressor.CompressionParams, stats *statistics.Statistics, done chan struct{}) {
	defer close(done)

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"input_dir":  params.InputDir,
		"output_dir": params.OutputDir,
		"size":       params.Size.String(),
		"expected":   params.Expected,
	})

	c := compressor.NewDefaultCompressorWithHook(s.log, stats, io.Discard, s.broadcastProgress)
	summary, err := c.Compress(params)

	s.operationMutex.Lock()
	s.isRunning = false
	if err == nil {
		s.lastSummary = summary
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.log.WithError(err).Error("Compression failed")
		s.broadcastWSMessage("compress_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"produced":   summary.Produced,
		"expected":   summary.Expected,
		"missing":    summary.Missing(),
		"statistics": stats.GetSummary(),
	})
}

func (s *Server) broadcastProgress(ev compressor.Event) {
	data := map[string]interface{}{
		"source": ev.Source,
	}
	if ev.Err != nil {
		data["error"] = ev.Err.Error()
	} else {
		data["dest"] = ev.Dest
		data["index"] = ev.Index
	}
	s.broadcastWSMessage(string(ev.Kind), data)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla connections allow one concurrent writer
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

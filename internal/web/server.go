package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/prober"
	"image-compressor-go/internal/scanner"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/watcher"

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

	scanner    *scanner.Scanner
	prober     *prober.Prober
	compressor compressor.Compressor

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelBatch    context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ImagesRequest struct {
	Paths []string `json:"paths"`
}

type CompressRequest struct {
	Path    string             `json:"path"`
	Options compressor.Options `json:"options"`
}

type BatchRequest struct {
	Paths   []string           `json:"paths"`
	Options compressor.Options `json:"options"`
}

// CompressResponse is the payload of a single-file compression.
type CompressResponse struct {
	Success bool                          `json:"success"`
	Result  *compressor.CompressionResult `json:"result,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, comp compressor.Compressor) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		router:     mux.NewRouter(),
		wsClients:  make(map[*websocket.Conn]bool),
		scanner:    scanner.New(cfg.SupportedExtensions, log),
		prober:     prober.New(log),
		compressor: comp,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/formats", s.handleFormats).Methods("GET")
	api.HandleFunc("/images", s.handleListImages).Methods("POST")
	api.HandleFunc("/dimensions", s.handleDimensions).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/compress/batch", s.handleCompressBatch).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancelBatch != nil {
		s.cancelBatch()
	}
	s.operationMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Watch forwards images reported by w to websocket clients as image_added.
func (s *Server) Watch(ctx context.Context, w *watcher.Watcher) {
	go w.Run(ctx)
	for ev := range w.Events() {
		s.broadcastWSMessage("image_added", ev.Image)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"formats":    s.compressor.Formats(),
			"statistics": statsData,
		},
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"input":  s.cfg.SupportedExtensions,
			"output": s.compressor.Formats(),
		},
	})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	var req ImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report := s.scanner.Resolve(req.Paths)
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("%d images found, %d entries skipped", len(report.Images), report.Skipped),
		Data:    report.Images,
	})
}

func (s *Server) handleDimensions(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	dims, err := s.prober.Probe(path)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, prober.ErrNotAFile) {
			status = http.StatusBadRequest
		}
		s.writeError(w, err.Error(), status)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    dims,
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}
	if err := req.Options.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.compressor.Compress(r.Context(), req.Path, req.Options)
	if err != nil {
		var loadErr *compressor.ImageLoadError
		if errors.As(err, &loadErr) {
			s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: res.Success,
		Message: res.Message,
		Data: CompressResponse{
			Success: res.Success,
			Result:  res,
		},
	})
}

func (s *Server) handleCompressBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		s.writeError(w, "At least one path is required", http.StatusBadRequest)
		return
	}
	if err := req.Options.ValidateValues(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := s.scanner.Resolve(req.Paths)
	if len(report.Images) == 0 {
		s.writeError(w, "No images found", http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	stats := statistics.NewStatistics()
	stats.AddScan(len(report.Images), report.Skipped, report.DirectoriesScanned)
	s.isRunning = true
	s.cancelBatch = cancel
	s.currentStats = stats
	s.operationMutex.Unlock()

	paths := make([]string, len(report.Images))
	for i, img := range report.Images {
		paths[i] = img.FilePath
	}

	go s.runBatchAsync(ctx, paths, req.Options, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
		Data: map[string]interface{}{
			"files":   len(paths),
			"skipped": report.Skipped,
		},
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if s.cancelBatch != nil {
		s.cancelBatch()
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
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
			"summary": stats.GetSummary(),
			"errors":  stats.GetErrorSummary(),
			"counts":  stats.Snapshot(),
		},
	})
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

func (s *Server) runBatchAsync(ctx context.Context, paths []string, opts compressor.Options, stats *statistics.Statistics) {
	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.cancelBatch = nil
		s.operationMutex.Unlock()
	}()

	log := logger.WithOperation(s.log, "batch")
	log.WithField("files", len(paths)).Info("Batch started")
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"files": len(paths),
	})

	results := s.compressor.CompressBatch(ctx, paths, opts, func(r compressor.CompressionResult) {
		compressor.Record(stats, r)
		s.broadcastWSMessage("file_compressed", r)
	})
	stats.Finalize()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	log.WithFields(logrus.Fields{
		"files":     len(results),
		"succeeded": succeeded,
	}).Info("Batch completed")
	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"files":      len(results),
		"succeeded":  succeeded,
		"cancelled":  ctx.Err() != nil,
		"statistics": stats.Snapshot(),
	})
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

	// Writes are serialized: a websocket.Conn allows one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
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

// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stubservice is a stand-in for the editor commandlet: it speaks the same HTTP API
// (health, shutdown and a small in-memory asset store) and can be told to boot slowly,
// ignore shutdown requests or crash, so the lifecycle can be tested without the editor.
package stubservice

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options control the behavior of the stub.
type Options struct {
	// ReadyAfter delays healthy answers, simulating editor startup.
	ReadyAfter time.Duration
	// IgnoreShutdown acknowledges /api/shutdown but never stops.
	IgnoreShutdown bool
}

// Blueprint is an asset held by the stub.
type Blueprint struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ParentClass   string `json:"parentClass"`
	BlueprintType string `json:"blueprintType"`
}

var knownParentClasses = map[string]struct{}{
	"Object":           {},
	"Actor":            {},
	"Pawn":             {},
	"Character":        {},
	"ActorComponent":   {},
	"SceneComponent":   {},
	"GameModeBase":     {},
	"PlayerController": {},
}

// Server is the stub HTTP service.
type Server struct {
	opts    Options
	router  *gin.Engine
	server  *http.Server
	started time.Time
	logger  *zap.SugaredLogger

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	mu        sync.RWMutex
	assets    map[string]Blueprint
	snapshots map[string]string
}

// New creates a stub server. The readiness clock starts now.
func New(opts Options, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.TestMode)

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		opts:       opts,
		router:     gin.New(),
		started:    time.Now(),
		logger:     logger,
		shutdownCh: make(chan struct{}),
		assets:     make(map[string]Blueprint),
		snapshots:  make(map[string]string),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/shutdown", s.handleShutdown)
	api.GET("/list", s.handleList)
	api.GET("/blueprint", s.handleGetBlueprint)
	api.GET("/graph", s.handleGetGraph)
	api.GET("/search", s.handleSearch)
	api.POST("/create-blueprint", s.handleCreateBlueprint)
	api.POST("/delete-asset", s.handleDeleteAsset)
	api.POST("/rename-asset", s.handleRenameAsset)
	api.POST("/snapshot-graph", s.handleSnapshotGraph)
	api.POST("/restore-graph", s.handleRestoreGraph)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debugw("API Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve blocks serving on listener until Close.
func (s *Server) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Close stops the HTTP server.
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ShutdownRequested is closed after the first honored /api/shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

func (s *Server) handleHealth(c *gin.Context) {
	if time.Since(s.started) < s.opts.ReadyAfter {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})

		return
	}

	s.mu.RLock()
	count := len(s.assets)
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"mode":           "commandlet",
		"blueprintCount": count,
		"mapCount":       0,
	})
}

func (s *Server) handleShutdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "shutting_down"})

	if s.opts.IgnoreShutdown {
		s.logger.Info("Ignoring shutdown request")

		return
	}

	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

func (s *Server) handleList(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := strings.ToLower(c.Query("filter"))

	blueprints := make([]Blueprint, 0, len(s.assets))
	for _, bp := range s.assets {
		if filter == "" || strings.Contains(strings.ToLower(bp.Name), filter) {
			blueprints = append(blueprints, bp)
		}
	}

	sort.Slice(blueprints, func(i, j int) bool { return blueprints[i].Path < blueprints[j].Path })

	c.JSON(http.StatusOK, gin.H{"blueprints": blueprints, "count": len(blueprints)})
}

func (s *Server) handleGetBlueprint(c *gin.Context) {
	bp, ok := s.lookup(c.Query("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blueprint not found: " + c.Query("name")})

		return
	}

	c.JSON(http.StatusOK, bp)
}

// defaultEventNodes are the nodes every new blueprint starts its event graph with.
var defaultEventNodes = []string{"Event BeginPlay", "Event ActorBeginOverlap", "Event Tick"}

type graphNode struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Pins  []string `json:"pins"`
}

func (s *Server) handleGetGraph(c *gin.Context) {
	bp, ok := s.lookup(c.Query("name"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "Blueprint not found: " + c.Query("name")})

		return
	}

	graph := c.DefaultQuery("graph", "EventGraph")
	if graph != "EventGraph" {
		c.JSON(http.StatusOK, gin.H{"error": "Graph not found: " + graph})

		return
	}

	nodes := make([]graphNode, 0, len(defaultEventNodes))
	for _, title := range defaultEventNodes {
		nodes = append(nodes, graphNode{
			// stable across calls, so a test can compare two reads
			ID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte(bp.Path+"#"+graph+"#"+title)).String(),
			Title: title,
			Pins:  []string{"then"},
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"blueprint": bp.Name,
		"graph":     graph,
		"nodes":     nodes,
		"nodeCount": len(nodes),
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.ToLower(c.Query("query"))

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Blueprint, 0)
	for _, bp := range s.assets {
		if strings.Contains(strings.ToLower(bp.Name), query) {
			results = append(results, bp)
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

type createBlueprintRequest struct {
	BlueprintName string `json:"blueprintName"`
	PackagePath   string `json:"packagePath"`
	ParentClass   string `json:"parentClass"`
	BlueprintType string `json:"blueprintType"`
}

func (s *Server) handleCreateBlueprint(c *gin.Context) {
	var req createBlueprintRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BlueprintName == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Missing required field: blueprintName"})

		return
	}

	if req.PackagePath == "" {
		req.PackagePath = "/Game"
	}

	if req.PackagePath != "/Game" && !strings.HasPrefix(req.PackagePath, "/Game/") {
		c.JSON(http.StatusOK, gin.H{"error": "packagePath must start with /Game, got " + req.PackagePath})

		return
	}

	if req.ParentClass == "" {
		req.ParentClass = "Actor"
	}

	if _, known := knownParentClasses[req.ParentClass]; !known {
		c.JSON(http.StatusOK, gin.H{"error": "Could not find parent class: " + req.ParentClass})

		return
	}

	assetPath := path.Join(req.PackagePath, req.BlueprintName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[assetPath]; exists {
		c.JSON(http.StatusOK, gin.H{"error": "Asset already exists: " + assetPath})

		return
	}

	s.assets[assetPath] = Blueprint{
		Name:          req.BlueprintName,
		Path:          assetPath,
		ParentClass:   req.ParentClass,
		BlueprintType: req.BlueprintType,
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"blueprintName": req.BlueprintName,
		"packagePath":   req.PackagePath,
		"assetPath":     assetPath,
		"parentClass":   req.ParentClass,
		"blueprintType": req.BlueprintType,
		"saved":         true,
		"graphs":        []string{"EventGraph"},
	})
}

type deleteAssetRequest struct {
	AssetPath string `json:"assetPath"`
	Force     bool   `json:"force"`
}

func (s *Server) handleDeleteAsset(c *gin.Context) {
	var req deleteAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AssetPath == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Missing required field: assetPath"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[req.AssetPath]; !exists {
		c.JSON(http.StatusOK, gin.H{"error": "Asset not found: " + req.AssetPath})

		return
	}

	delete(s.assets, req.AssetPath)
	c.JSON(http.StatusOK, gin.H{"success": true, "assetPath": req.AssetPath})
}

type renameAssetRequest struct {
	AssetPath string `json:"assetPath"`
	NewPath   string `json:"newPath"`
}

func (s *Server) handleRenameAsset(c *gin.Context) {
	var req renameAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AssetPath == "" || req.NewPath == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Missing required fields: assetPath, newPath"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bp, exists := s.assets[req.AssetPath]
	if !exists {
		c.JSON(http.StatusOK, gin.H{"error": "Asset not found: " + req.AssetPath})

		return
	}

	delete(s.assets, req.AssetPath)
	bp.Path = req.NewPath
	bp.Name = path.Base(req.NewPath)
	s.assets[req.NewPath] = bp

	c.JSON(http.StatusOK, gin.H{"success": true, "oldPath": req.AssetPath, "newPath": req.NewPath})
}

type snapshotGraphRequest struct {
	Blueprint string `json:"blueprint"`
	Graph     string `json:"graph"`
}

func (s *Server) handleSnapshotGraph(c *gin.Context) {
	var req snapshotGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Blueprint == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Missing required field: blueprint"})

		return
	}

	if _, ok := s.lookup(req.Blueprint); !ok {
		c.JSON(http.StatusOK, gin.H{"error": "Blueprint not found: " + req.Blueprint})

		return
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.snapshots[id] = req.Blueprint
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "snapshotId": id, "blueprint": req.Blueprint})
}

type restoreGraphRequest struct {
	SnapshotID string `json:"snapshotId"`
}

func (s *Server) handleRestoreGraph(c *gin.Context) {
	var req restoreGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SnapshotID == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Missing required field: snapshotId"})

		return
	}

	s.mu.RLock()
	blueprint, ok := s.snapshots[req.SnapshotID]
	s.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "Snapshot not found: " + req.SnapshotID})

		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok", "blueprint": blueprint, "reconnected": 0, "failed": 0})
}

// lookup finds a blueprint by full path or by bare name.
func (s *Server) lookup(name string) (Blueprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bp, ok := s.assets[name]; ok {
		return bp, true
	}

	for _, bp := range s.assets {
		if bp.Name == name {
			return bp, true
		}
	}

	return Blueprint{}, false
}

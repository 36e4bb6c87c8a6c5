// services/vault/service.go
package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/cache"
	"github.com/watchme-app/vault-api/services/common/config"
	"github.com/watchme-app/vault-api/services/common/events"
	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/objectstore"
	"github.com/watchme-app/vault-api/services/common/pathkey"
	"github.com/watchme-app/vault-api/services/common/policy"
)

const (
	serviceName    = "vault"
	serviceVersion = "1.0.0"

	healthTimeout = 3 * time.Second
)

var (
	// ErrBadRequest is the class of malformed request errors.
	ErrBadRequest = errs.Class("bad request")
	// ErrTooLarge is returned when an upload exceeds the configured ceiling.
	ErrTooLarge = errs.Class("payload too large")
	// ErrNotConfigured is returned when a request needs a backend that is disabled.
	ErrNotConfigured = errs.Class("not configured")
)

type VaultService struct {
	cfg       *config.Config
	log       *zap.Logger
	objects   objectstore.Store
	meta      *metadata.Store
	devices   *cache.Devices
	publisher events.Publisher
	eventsOn  bool
	router    *gin.Engine
}

func NewVaultService(cfg *config.Config, log *zap.Logger, b *backends) *VaultService {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log.Named("http")))

	publisher := b.publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	s := &VaultService{
		cfg:       cfg,
		log:       log,
		objects:   b.objects,
		meta:      b.meta,
		devices:   b.devices,
		publisher: publisher,
		eventsOn:  b.eventsOn,
		router:    router,
	}
	s.setupRoutes()
	return s
}

func (s *VaultService) setupRoutes() {
	s.router.GET("/", s.home)
	s.router.GET("/health", s.healthCheck)

	// Uploads
	s.router.POST("/upload", s.uploadAudio)
	s.router.POST("/upload/analysis/:category", s.uploadArtifact)
	s.router.POST("/upload-transcription", s.uploadArtifactAs("transcriptions"))
	s.router.POST("/upload-prompt", s.uploadArtifactAs("prompt"))

	// Downloads
	s.router.GET("/download", s.downloadAudio)
	s.router.GET("/download/:category", s.downloadArtifact)
	s.router.GET("/download-sed", s.downloadArtifactAs("sed"))
	s.router.GET("/download-opensmile", s.downloadArtifactAs("opensmile"))
	s.router.GET("/download-file", s.downloadFile)
	s.router.GET("/view-file", s.viewFile)

	// Dashboard reads
	users := s.router.Group("/api/users/:user_id/logs/:date")
	{
		users.GET("/:category", s.userLog)
		users.GET("/:category/:slot", s.userLogSlot)
	}

	// Listing
	s.router.GET("/status", s.status)
	api := s.router.Group("/api")
	{
		api.GET("/audio-files", s.listAudioFiles)
		api.GET("/audio-files/presigned-url", s.presignedURL)
		api.GET("/devices", s.listDevices)
	}
}

func (s *VaultService) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "WatchMe Vault API",
		"version": serviceVersion,
		"status":  "running",
		"endpoints": []string{
			"GET /health",
			"POST /upload",
			"POST /upload/analysis/:category",
			"GET /download",
			"GET /download/:category",
			"GET /download-file",
			"GET /view-file",
			"GET /api/users/:user_id/logs/:date/:category[/:slot]",
			"GET /status",
			"GET /api/audio-files",
			"GET /api/audio-files/presigned-url",
			"GET /api/devices",
		},
	})
}

func (s *VaultService) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":              "healthy",
		"service":             serviceName,
		"timestamp":           time.Now().Unix(),
		"version":             serviceVersion,
		"storage_backend":     s.cfg.StorageBackend,
		"s3_configured":       s.objects != nil,
		"database_configured": s.meta != nil,
		"cache_configured":    s.devices != nil,
		"events_configured":   s.eventsOn,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	check := func(name string, configured bool, ping func(context.Context) error) {
		switch {
		case !configured:
			health[name] = "not configured"
		case ping(ctx) != nil:
			health[name] = "unhealthy"
			health["status"] = "degraded"
		default:
			health[name] = "healthy"
		}
	}
	check("object_store", s.objects != nil, func(ctx context.Context) error { return s.objects.Ping(ctx) })
	check("database", s.meta != nil, func(ctx context.Context) error { return s.meta.Ping(ctx) })
	check("cache", s.devices != nil, func(ctx context.Context) error { return s.devices.Ping(ctx) })

	c.JSON(http.StatusOK, health)
}

// respondError maps an error class to a status code and aborts with {"error": reason}.
func (s *VaultService) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case ErrBadRequest.Has(err), pathkey.Error.Has(err), policy.Error.Has(err):
		status = http.StatusBadRequest
	case ErrTooLarge.Has(err):
		status = http.StatusRequestEntityTooLarge
	case objectstore.ErrNotFound.Has(err):
		status = http.StatusNotFound
	case objectstore.ErrUnsupported.Has(err):
		status = http.StatusNotImplemented
	case ErrNotConfigured.Has(err), objectstore.ErrUnavailable.Has(err), metadata.ErrUnavailable.Has(err):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *VaultService) requireObjects() error {
	if s.objects == nil {
		return ErrNotConfigured.New("object store is not configured")
	}
	return nil
}

// publish sends e without failing the request.
func (s *VaultService) publish(ctx context.Context, e *events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("could not publish event", zap.String("type", string(e.Type)), zap.String("key", e.Key), zap.Error(err))
	}
}

// rememberDevice adds id to the device cache without failing the request.
func (s *VaultService) rememberDevice(ctx context.Context, id string) {
	if s.devices == nil {
		return
	}
	if err := s.devices.Add(ctx, id); err != nil {
		s.log.Warn("could not cache device id", zap.String("device_id", id), zap.Error(err))
	}
}

func isMaxBytes(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// mime/multipart does not always wrap the reader error.
	return strings.Contains(err.Error(), "request body too large")
}

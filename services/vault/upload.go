// services/vault/upload.go
package main

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/events"
	"github.com/watchme-app/vault-api/services/common/models"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

const (
	// multipartOverhead is the room left above the file ceiling for form
	// fields and part headers.
	multipartOverhead = 1 << 20

	sourceClientOffset = "client_offset"
	sourceReference    = "reference_zone"
	sourcePathHeader   = "path_header"
	sourceServerClock  = "server_clock"
)

// Legacy artifact route names still used by older pipeline workers.
var legacyCategories = map[string]string{
	"sed-timeline":       "sed",
	"opensmile-features": "opensmile",
}

type timezoneInfo struct {
	Source string `json:"source"`
	Offset string `json:"offset"`
	Zone   string `json:"zone,omitempty"`
}

// audioTarget is where one raw recording will be stored and how it is registered.
type audioTarget struct {
	DeviceID   string
	RecordedAt time.Time
	Date       string
	Slot       string
	Timezone   timezoneInfo
}

func (s *VaultService) uploadAudio(c *gin.Context) {
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}
	header, err := s.formFile(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	target, err := s.resolveAudioTarget(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	key, err := pathkey.AudioKey(target.DeviceID, target.Date, target.Slot)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	s.log.Info("📥 Processing upload",
		zap.String("device_id", target.DeviceID),
		zap.String("key", key),
		zap.String("size", humanize.IBytes(uint64(header.Size))))

	// A registered upload needs both stores; refuse before writing the object.
	if s.meta != nil {
		if err := s.meta.Ping(ctx); err != nil {
			s.respondError(c, err)
			return
		}
	}
	if err := s.putFile(c, header, key, models.ContentTypeWAV); err != nil {
		s.respondError(c, err)
		return
	}

	status := s.cfg.Skip.InitialStatus(target.DeviceID, target.Slot)
	rec := &models.AudioFile{
		DeviceID:      target.DeviceID,
		RecordedAt:    target.RecordedAt,
		FilePath:      key,
		LocalDate:     target.Date,
		TimeBlock:     target.Slot,
		FileSizeBytes: header.Size,
	}
	rec.SetInitialStatus(status)

	if s.meta != nil {
		if _, err := s.meta.Insert(ctx, rec); err != nil {
			s.respondError(c, err)
			return
		}
	} else {
		s.log.Warn("metadata store not configured, upload not registered", zap.String("key", key))
	}

	s.rememberDevice(ctx, target.DeviceID)
	s.publish(ctx, events.NewEvent(events.AudioUploaded, serviceName, key, map[string]interface{}{
		"id":                rec.ID,
		"device_id":         rec.DeviceID,
		"file_path":         key,
		"local_date":        rec.LocalDate,
		"time_block":        rec.TimeBlock,
		"file_size_bytes":   rec.FileSizeBytes,
		"processing_status": status,
	}))

	s.log.Info("✅ Upload completed", zap.String("key", key), zap.String("processing_status", string(status)))

	resp := gin.H{
		"status":            "success",
		"s3_key":            key,
		"file_path":         key,
		"device_id":         rec.DeviceID,
		"recorded_at":       rec.RecordedAt,
		"local_date":        rec.LocalDate,
		"time_block":        rec.TimeBlock,
		"file_size_bytes":   rec.FileSizeBytes,
		"processing_status": status,
		"timezone_info":     target.Timezone,
	}
	if rec.ID != "" {
		resp["id"] = rec.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *VaultService) uploadArtifact(c *gin.Context) {
	s.storeArtifact(c, c.Param("category"))
}

func (s *VaultService) uploadArtifactAs(category string) gin.HandlerFunc {
	return func(c *gin.Context) { s.storeArtifact(c, category) }
}

func (s *VaultService) storeArtifact(c *gin.Context, name string) {
	category, err := lookupCategory(name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}
	header, err := s.formFile(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !strings.EqualFold(path.Ext(header.Filename), category.Extension) {
		s.respondError(c, ErrBadRequest.New("only %s files are allowed for %s", category.Extension, category.Name))
		return
	}

	deviceID := formDeviceID(c)
	date := c.PostForm("date")
	slot := formSlot(c)
	key, err := pathkey.ArtifactKey(deviceID, date, category, slot)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.putFile(c, header, key, models.ContentTypeJSON); err != nil {
		s.respondError(c, err)
		return
	}

	data := map[string]interface{}{
		"category":        category.Name,
		"device_id":       deviceID,
		"date":            date,
		"file_path":       key,
		"file_size_bytes": header.Size,
	}
	if category.Policy == models.SlotName {
		data["slot"] = slot
	}
	s.publish(c.Request.Context(), events.NewEvent(events.ArtifactUploaded, serviceName, key, data))

	s.log.Info("✅ Artifact stored", zap.String("category", category.Name), zap.String("key", key))

	resp := gin.H{"status": "success", "s3_key": key}
	for k, v := range data {
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}

// formFile returns the "file" part, enforcing the upload ceiling.
func (s *VaultService) formFile(c *gin.Context) (*multipart.FileHeader, error) {
	limit := s.cfg.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	header, err := c.FormFile("file")
	switch {
	case err == nil:
	case isMaxBytes(err):
		return nil, ErrTooLarge.New("upload exceeds the %s limit", humanize.IBytes(uint64(limit)))
	case errors.Is(err, http.ErrMissingFile):
		return nil, ErrBadRequest.New("file is required")
	default:
		return nil, ErrBadRequest.New("malformed multipart body: %v", err)
	}
	if header.Size > limit {
		return nil, ErrTooLarge.New("file is %d bytes, the limit is %d bytes", header.Size, limit)
	}
	return header, nil
}

func (s *VaultService) putFile(c *gin.Context, header *multipart.FileHeader, key, contentType string) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return s.objects.Put(c.Request.Context(), key, file, header.Size, contentType)
}

// resolveAudioTarget accepts, in order: a "metadata" JSON field, an
// X-File-Path header, or a device id with an optional timestamp.
func (s *VaultService) resolveAudioTarget(c *gin.Context) (audioTarget, error) {
	if raw := c.PostForm("metadata"); raw != "" {
		var meta struct {
			DeviceID   string `json:"device_id"`
			RecordedAt string `json:"recorded_at"`
		}
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return audioTarget{}, ErrBadRequest.New("metadata is not valid JSON: %v", err)
		}
		if meta.DeviceID == "" || meta.RecordedAt == "" {
			return audioTarget{}, ErrBadRequest.New("metadata requires device_id and recorded_at")
		}
		return s.targetFromTimestamp(meta.DeviceID, meta.RecordedAt)
	}

	if header := c.GetHeader("X-File-Path"); header != "" {
		fp, err := pathkey.ParseFilePath(header)
		if err != nil {
			return audioTarget{}, err
		}
		deviceID := formDeviceID(c)
		if deviceID == "" {
			return audioTarget{}, ErrBadRequest.New("device_id is required with X-File-Path")
		}
		if deviceID != fp.DeviceID {
			return audioTarget{}, ErrBadRequest.New("device_id %q does not match X-File-Path device %q", deviceID, fp.DeviceID)
		}
		loc := s.cfg.ReferenceLocation
		recordedAt, err := pathkey.SlotStart(fp.Date, fp.Slot, loc)
		if err != nil {
			return audioTarget{}, err
		}
		return audioTarget{
			DeviceID:   fp.DeviceID,
			RecordedAt: recordedAt,
			Date:       fp.Date,
			Slot:       fp.Slot,
			Timezone:   timezoneInfo{Source: sourcePathHeader, Offset: recordedAt.Format("-07:00"), Zone: loc.String()},
		}, nil
	}

	deviceID := formDeviceID(c)
	if deviceID == "" {
		return audioTarget{}, ErrBadRequest.New("device_id is required")
	}
	if ts := c.PostForm("timestamp"); ts != "" {
		return s.targetFromTimestamp(deviceID, ts)
	}
	loc := s.cfg.ReferenceLocation
	now := time.Now().In(loc)
	return newAudioTarget(deviceID, now, timezoneInfo{Source: sourceServerClock, Offset: now.Format("-07:00"), Zone: loc.String()})
}

func (s *VaultService) targetFromTimestamp(deviceID, value string) (audioTarget, error) {
	loc := s.cfg.ReferenceLocation
	t, hasOffset, err := pathkey.ParseTimestamp(value, loc)
	if err != nil {
		return audioTarget{}, err
	}
	tz := timezoneInfo{Source: sourceClientOffset, Offset: t.Format("-07:00")}
	if !hasOffset {
		s.log.Warn("timestamp without offset, using reference zone",
			zap.String("timestamp", value), zap.String("zone", loc.String()))
		tz.Source = sourceReference
		tz.Zone = loc.String()
	}
	return newAudioTarget(deviceID, t, tz)
}

func newAudioTarget(deviceID string, t time.Time, tz timezoneInfo) (audioTarget, error) {
	if err := pathkey.ValidateSegment("device_id", deviceID); err != nil {
		return audioTarget{}, err
	}
	return audioTarget{
		DeviceID:   deviceID,
		RecordedAt: t,
		Date:       pathkey.DateLabel(t),
		Slot:       pathkey.SlotLabel(t),
		Timezone:   tz,
	}, nil
}

func lookupCategory(name string) (models.Category, error) {
	if alias, ok := legacyCategories[name]; ok {
		name = alias
	}
	category, ok := models.LookupCategory(name)
	if !ok {
		return models.Category{}, ErrBadRequest.New("unknown category %q, expected one of %s",
			name, strings.Join(models.CategoryNames(), ", "))
	}
	return category, nil
}

// formDeviceID reads device_id, falling back to the older user_id field.
func formDeviceID(c *gin.Context) string {
	if id := c.PostForm("device_id"); id != "" {
		return id
	}
	return c.PostForm("user_id")
}

func formSlot(c *gin.Context) string {
	for _, field := range []string{"slot", "time_block", "time_slot"} {
		if v := c.PostForm(field); v != "" {
			return v
		}
	}
	return ""
}

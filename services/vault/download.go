// services/vault/download.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/models"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

func (s *VaultService) downloadAudio(c *gin.Context) {
	key, err := pathkey.AudioKey(queryDeviceID(c), c.Query("date"), c.Query("slot"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.streamObject(c, key, c.Query("slot")+".wav")
}

func (s *VaultService) downloadArtifact(c *gin.Context) {
	s.sendArtifact(c, c.Param("category"))
}

func (s *VaultService) downloadArtifactAs(category string) gin.HandlerFunc {
	return func(c *gin.Context) { s.sendArtifact(c, category) }
}

func (s *VaultService) sendArtifact(c *gin.Context, name string) {
	category, err := lookupCategory(name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	slot := c.Query("slot")
	key, err := pathkey.ArtifactKey(queryDeviceID(c), c.Query("date"), category, slot)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.streamObject(c, key, category.FileNameFor(slot))
}

func (s *VaultService) downloadFile(c *gin.Context) {
	key, err := pathkey.CleanObjectPath(c.Query("file_path"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.streamObject(c, key, path.Base(key))
}

func (s *VaultService) viewFile(c *gin.Context) {
	key, err := pathkey.CleanObjectPath(c.Query("file_path"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !strings.EqualFold(path.Ext(key), ".json") {
		s.respondError(c, ErrBadRequest.New("only JSON files can be viewed"))
		return
	}
	s.sendJSON(c, key)
}

// userLog serves a fixed-name artifact, or lists the slots stored for a
// slot-named one.
func (s *VaultService) userLog(c *gin.Context) {
	category, err := lookupCategory(c.Param("category"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	deviceID, date := c.Param("user_id"), c.Param("date")

	if category.Policy == models.FixedName {
		key, err := pathkey.ArtifactKey(deviceID, date, category, "")
		if err != nil {
			s.respondError(c, err)
			return
		}
		s.sendJSON(c, key)
		return
	}

	if err := pathkey.ValidateSegment("user_id", deviceID); err != nil {
		s.respondError(c, err)
		return
	}
	if _, err := pathkey.ParseDate(date); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	prefix := pathkey.ArtifactPrefix(deviceID, date, category)
	objects, err := s.objects.List(ctx, prefix)
	if err != nil {
		s.respondError(c, err)
		return
	}
	slots := []string{}
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		slot := strings.TrimSuffix(name, category.Extension)
		if slot == name {
			continue
		}
		if _, err := pathkey.ParseSlot(slot); err == nil {
			slots = append(slots, slot)
		}
	}

	resp := gin.H{
		"available_slots": slots,
		"count":           len(slots),
		"has_summary":     false,
	}
	if summary, ok := models.LookupCategory(category.Summary); ok {
		key, err := pathkey.ArtifactKey(deviceID, date, summary, "")
		if err == nil {
			_, err = s.objects.Stat(ctx, key)
		}
		resp["has_summary"] = err == nil
	}
	c.JSON(http.StatusOK, resp)
}

func (s *VaultService) userLogSlot(c *gin.Context) {
	category, err := lookupCategory(c.Param("category"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if category.Policy != models.SlotName {
		s.respondError(c, ErrBadRequest.New("category %s has no time slots", category.Name))
		return
	}
	key, err := pathkey.ArtifactKey(c.Param("user_id"), c.Param("date"), category, c.Param("slot"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.sendJSON(c, key)
}

// streamObject copies key to the response as an attachment.
func (s *VaultService) streamObject(c *gin.Context, key, filename string) {
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}
	body, info, err := s.objects.Get(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer func() { _ = body.Close() }()

	contentType := info.ContentType
	if contentType == "" {
		contentType = models.ContentTypeFor(key)
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
	s.log.Debug("served object", zap.String("key", key), zap.Int64("size", info.Size))
}

// sendJSON returns the stored bytes of a JSON object unchanged, after checking
// they parse.
func (s *VaultService) sendJSON(c *gin.Context, key string) {
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}
	body, _, err := s.objects.Get(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !json.Valid(data) {
		s.respondError(c, ErrBadRequest.New("invalid JSON in %s", path.Base(key)))
		return
	}
	c.Data(http.StatusOK, models.ContentTypeJSON+"; charset=utf-8", data)
}

func queryDeviceID(c *gin.Context) string {
	if id := c.Query("device_id"); id != "" {
		return id
	}
	return c.Query("user_id")
}

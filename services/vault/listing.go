// services/vault/listing.go
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/catalog"
	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/models"
	"github.com/watchme-app/vault-api/services/common/objectstore"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

// status renders every stored object as a tree: device, date, slot or category, file.
func (s *VaultService) status(c *gin.Context) {
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}
	prefix := pathkey.Root
	if deviceID := queryDeviceID(c); deviceID != "" {
		if err := pathkey.ValidateSegment("device_id", deviceID); err != nil {
			s.respondError(c, err)
			return
		}
		prefix += deviceID + "/"
	}

	objects, err := s.objects.List(c.Request.Context(), prefix)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var total int64
	for _, obj := range objects {
		total += obj.Size
	}
	tree := catalog.Build(objects, pathkey.Root)
	if tree == nil {
		tree = []*catalog.Node{}
	}

	resp := gin.H{
		"root":             pathkey.Root,
		"object_count":     len(objects),
		"total_size":       total,
		"total_size_human": humanize.Bytes(uint64(total)),
		"tree":             tree,
	}
	if len(objects) == 0 {
		resp["message"] = "no files stored yet"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *VaultService) listAudioFiles(c *gin.Context) {
	if s.meta == nil {
		s.respondError(c, ErrNotConfigured.New("metadata store is not configured"))
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	filter = filter.Normalized()

	ctx := c.Request.Context()
	records, err := s.meta.List(ctx, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]models.AudioFileView, len(records))
	for i, rec := range records {
		views[i] = models.AudioFileView{AudioFile: rec, Object: s.lookupObject(c, rec.FilePath)}
	}

	c.JSON(http.StatusOK, gin.H{
		"audio_files": views,
		"count":       len(views),
		"filters": gin.H{
			"device_id":  filter.DeviceID,
			"start_date": filter.StartDate,
			"end_date":   filter.EndDate,
			"limit":      filter.Limit,
			"offset":     filter.Offset,
		},
	})
}

// lookupObject reports the live state of key. Failures other than "not
// found" leave Exists unknown rather than failing the listing.
func (s *VaultService) lookupObject(c *gin.Context, key string) models.StoredObject {
	if s.objects == nil {
		return models.StoredObject{}
	}
	info, err := s.objects.Stat(c.Request.Context(), key)
	switch {
	case err == nil:
		exists, size, modified := true, info.Size, info.LastModified
		return models.StoredObject{Exists: &exists, Size: &size, LastModified: &modified}
	case objectstore.ErrNotFound.Has(err):
		exists := false
		return models.StoredObject{Exists: &exists}
	default:
		s.log.Warn("could not stat listed object", zap.String("key", key), zap.Error(err))
		return models.StoredObject{}
	}
}

func parseFilter(c *gin.Context) (metadata.Filter, error) {
	filter := metadata.Filter{
		DeviceID:  queryDeviceID(c),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	for _, date := range []string{filter.StartDate, filter.EndDate} {
		if date == "" {
			continue
		}
		if _, err := pathkey.ParseDate(date); err != nil {
			return metadata.Filter{}, err
		}
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return metadata.Filter{}, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return metadata.Filter{}, err
	}
	return filter, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	value := c.Query(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, ErrBadRequest.New("%s must be an integer, got %q", name, value)
	}
	return n, nil
}

func (s *VaultService) presignedURL(c *gin.Context) {
	key, err := pathkey.CleanObjectPath(c.Query("file_path"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	hours := 1
	if c.Query("expiration_hours") != "" {
		if hours, err = queryInt(c, "expiration_hours"); err != nil {
			s.respondError(c, err)
			return
		}
	}
	if err := s.requireObjects(); err != nil {
		s.respondError(c, err)
		return
	}

	ttl := s.signedURLTTL(hours)
	url, err := s.objects.SignedURL(c.Request.Context(), key, ttl)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"presigned_url":    url,
		"file_path":        key,
		"expires_in_hours": int(ttl / time.Hour),
		"expires_at":       time.Now().Add(ttl).UTC(),
	})
}

// signedURLTTL bounds the hours before converting them, so any int the
// query parses to stays inside time.Duration.
func (s *VaultService) signedURLTTL(hours int) time.Duration {
	maxHours := int(s.cfg.SignedURLMaxTTL/time.Hour) + 1
	if hours > maxHours {
		hours = maxHours
	}
	if hours < 0 {
		hours = 0
	}
	return objectstore.ClampTTL(time.Duration(hours)*time.Hour, s.cfg.SignedURLMinTTL, s.cfg.SignedURLMaxTTL)
}

// listDevices answers from the Redis set once it has been filled from the
// metadata store, and otherwise reads the store and fills the set.
func (s *VaultService) listDevices(c *gin.Context) {
	ctx := c.Request.Context()
	if s.devices != nil {
		if ids, ok := s.cachedDevices(ctx); ok {
			c.JSON(http.StatusOK, gin.H{"devices": ids, "count": len(ids), "source": "cache"})
			return
		}
	}
	if s.meta == nil {
		s.respondError(c, ErrNotConfigured.New("metadata store is not configured"))
		return
	}

	ids, err := s.meta.Devices(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	if s.devices != nil {
		if err := s.devices.Fill(ctx, ids...); err != nil {
			s.log.Warn("could not refill device cache", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"devices": ids, "count": len(ids), "source": "database"})
}

func (s *VaultService) cachedDevices(ctx context.Context) ([]string, bool) {
	warm, err := s.devices.Warm(ctx)
	if err != nil {
		s.log.Warn("device cache read failed", zap.Error(err))
		return nil, false
	}
	if !warm {
		return nil, false
	}
	ids, err := s.devices.Members(ctx)
	if err != nil {
		s.log.Warn("device cache read failed", zap.Error(err))
		return nil, false
	}
	return ids, true
}

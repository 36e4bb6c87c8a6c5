package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/watchme-app/vault-api/services/common/cache"
	"github.com/watchme-app/vault-api/services/common/config"
	"github.com/watchme-app/vault-api/services/common/events"
	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/objectstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.Event(nil), p.events...)
}

type testVault struct {
	service *VaultService
	dataDir string
	objects *objectstore.Disk
	meta    *metadata.Store
	devices *cache.Devices
	redis   *miniredis.Miniredis
	events  *recordingPublisher
}

// newTestVault runs the service against a temp directory, SQLite and
// miniredis. env overrides the defaults below.
func newTestVault(t *testing.T, env map[string]string) *testVault {
	t.Helper()
	ctx := testContext(t)
	log := zaptest.NewLogger(t)
	dir := t.TempDir()

	vars := map[string]string{
		"VAULT_STORAGE_BACKEND":  config.BackendDisk,
		"VAULT_DATA_DIR":         filepath.Join(dir, "objects"),
		"METADATA_DRIVER":        metadata.DriverSQLite,
		"SQLITE_PATH":            filepath.Join(dir, "vault.db"),
		"VAULT_MAX_UPLOAD_BYTES": "1024",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.FromEnv(func(key string) string { return vars[key] })
	require.NoError(t, err)

	objects, err := objectstore.OpenDisk(log, cfg.DataDir)
	require.NoError(t, err)

	meta, err := metadata.Open(ctx, log, cfg.MetadataDriver, cfg.MetadataDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })
	require.NoError(t, meta.Migrate(ctx))

	server := miniredis.RunT(t)
	devices, err := cache.OpenDevices(ctx, log, server.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = devices.Close() })

	publisher := &recordingPublisher{}
	service := NewVaultService(cfg, log, &backends{
		objects:   objects,
		meta:      meta,
		devices:   devices,
		publisher: publisher,
		eventsOn:  true,
	})
	return &testVault{
		service: service,
		dataDir: cfg.DataDir,
		objects: objects,
		meta:    meta,
		devices: devices,
		redis:   server,
		events:  publisher,
	}
}

// newBareVault runs the service with no backends at all.
func newBareVault(t *testing.T) *VaultService {
	t.Helper()
	cfg, err := config.FromEnv(func(string) string { return "" })
	require.NoError(t, err)
	return NewVaultService(cfg, zaptest.NewLogger(t), &backends{})
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func (v *testVault) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(v.service.router, httptest.NewRequest(http.MethodGet, target, nil))
}

// upload posts a multipart form with one "file" part.
func (v *testVault) upload(t *testing.T, target string, fields map[string]string, header http.Header, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, val := range fields {
		require.NoError(t, w.WriteField(k, val))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	return serve(v.service.router, req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (v *testVault) storedKeys(t *testing.T) []string {
	t.Helper()
	objects, err := v.objects.List(testContext(t), "")
	require.NoError(t, err)
	keys := []string{}
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys
}

func (v *testVault) read(t *testing.T, key string) []byte {
	t.Helper()
	body, _, err := v.objects.Get(testContext(t), key)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

func wav(n int) []byte {
	data := bytes.Repeat([]byte{0x52}, n)
	copy(data, "RIFF")
	return data
}

func removeObject(v *testVault, key string) error {
	return os.Remove(filepath.Join(v.dataDir, filepath.FromSlash(key)))
}

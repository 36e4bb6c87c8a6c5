package main

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/watchme-app/vault-api/services/common/config"
	"github.com/watchme-app/vault-api/services/common/metadata"
)

func TestUnreachableMetadataStoreFailsUploads(t *testing.T) {
	dir := t.TempDir()
	vars := map[string]string{
		"VAULT_STORAGE_BACKEND": config.BackendDisk,
		"VAULT_DATA_DIR":        filepath.Join(dir, "objects"),
		"METADATA_DRIVER":       metadata.DriverSQLite,
		"SQLITE_PATH":           filepath.Join(dir, "missing", "vault.db"),
	}
	cfg, err := config.FromEnv(func(key string) string { return vars[key] })
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	b, err := openBackends(testContext(t), cfg, log)
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.meta)

	v := &testVault{service: NewVaultService(cfg, log, b), dataDir: cfg.DataDir}

	rec := v.upload(t, "/upload", map[string]string{
		"metadata": `{"device_id": "dev-1", "recorded_at": "2025-07-18T10:37:12+09:00"}`,
	}, nil, "a.wav", wav(64))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Contains(t, decode(t, rec)["error"], "metadata store unavailable")

	objects, err := b.objects.List(testContext(t), "")
	require.NoError(t, err)
	assert.Empty(t, objects)

	resp := decode(t, v.get(t, "/health"))
	assert.Equal(t, true, resp["database_configured"])
	assert.Equal(t, "unhealthy", resp["database"])
	assert.Equal(t, "degraded", resp["status"])

	assert.Equal(t, http.StatusServiceUnavailable, v.get(t, "/api/audio-files").Code)
}

// services/vault/backends.go
package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/cache"
	"github.com/watchme-app/vault-api/services/common/config"
	"github.com/watchme-app/vault-api/services/common/events"
	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/objectstore"
)

// backends holds the clients a VaultService talks to. Any of objects, meta
// and devices may be nil when the matching configuration is absent or the
// backend could not be reached at startup.
type backends struct {
	objects   objectstore.Store
	meta      *metadata.Store
	devices   *cache.Devices
	publisher events.Publisher
	eventsOn  bool
}

func openBackends(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{publisher: events.Nop{}}

	switch cfg.StorageBackend {
	case config.BackendDisk:
		disk, err := objectstore.OpenDisk(log.Named("objectstore"), cfg.DataDir)
		if err != nil {
			return nil, err
		}
		b.objects = disk
	case config.BackendS3:
		if !cfg.S3Configured() {
			log.Warn("S3 credentials missing, object store disabled")
			break
		}
		store, err := objectstore.OpenMinIO(ctx, log.Named("objectstore"), cfg.MinIO())
		if err != nil {
			// Keep an offline client so requests report the outage instead of "not configured".
			log.Warn("Could not open S3 bucket", zap.Error(err))
			store, err = objectstore.NewMinIO(log.Named("objectstore"), cfg.MinIO())
			if err != nil {
				return nil, err
			}
		}
		b.objects = store
	}

	if cfg.DatabaseConfigured() {
		meta, err := metadata.Open(ctx, log.Named("metadata"), cfg.MetadataDriver, cfg.MetadataDSN())
		if err != nil {
			// Keep a lazy pool so uploads fail with 503 instead of skipping the row.
			log.Warn("Could not connect to metadata store", zap.Error(err))
			meta, err = metadata.New(log.Named("metadata"), cfg.MetadataDriver, cfg.MetadataDSN())
			if err != nil {
				return nil, err
			}
		} else if err := meta.Migrate(ctx); err != nil {
			log.Warn("Could not migrate metadata store", zap.Error(err))
		}
		b.meta = meta
	} else {
		log.Warn("metadata store not configured, uploads will not be registered")
	}

	if cfg.RedisConfigured() {
		devices, err := cache.OpenDevices(ctx, log.Named("cache"), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("Could not connect to Redis", zap.Error(err))
		} else {
			b.devices = devices
		}
	}

	if cfg.KafkaConfigured() {
		b.publisher = events.NewKafka(log.Named("events"), cfg.KafkaBrokers, cfg.KafkaTopic)
		b.eventsOn = true
		log.Info("✅ Kafka writer initialized", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	return b, nil
}

// Close releases every client, ignoring errors.
func (b *backends) Close() {
	if b.publisher != nil {
		_ = b.publisher.Close()
	}
	if b.devices != nil {
		_ = b.devices.Close()
	}
	if b.meta != nil {
		_ = b.meta.Close()
	}
}

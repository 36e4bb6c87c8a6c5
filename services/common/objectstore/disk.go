// services/common/objectstore/disk.go
package objectstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/models"
)

const tempPrefix = ".tmp-"

// Disk stores objects as files below a root directory, one file per key.
type Disk struct {
	log  *zap.Logger
	root string
}

var _ Store = (*Disk)(nil)

// OpenDisk creates root if needed.
func OpenDisk(log *zap.Logger, root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	log.Info("✅ Disk object store ready", zap.String("root", root))
	return &Disk{log: log, root: root}, nil
}

func (d *Disk) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrNotFound.New("invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, tempPrefix) {
			return "", ErrNotFound.New("invalid key %q", key)
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// Put implements Store. The object becomes visible only once fully written.
func (d *Disk) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (err error) {
	full, err := d.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ErrUnavailable.Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return ErrUnavailable.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return ErrUnavailable.Wrap(err)
	}
	if size >= 0 && n != size {
		return ErrUnavailable.New("short write for %q: wrote %d of %d bytes", key, n, size)
	}
	if err = tmp.Close(); err != nil {
		return ErrUnavailable.Wrap(err)
	}
	if err = os.Rename(tmp.Name(), full); err != nil {
		return ErrUnavailable.Wrap(err)
	}
	return nil
}

// Stat implements Store.
func (d *Disk) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	full, err := d.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return ObjectInfo{}, mapFSError(key, err)
	}
	if fi.IsDir() {
		return ObjectInfo{}, ErrNotFound.New("%s", key)
	}
	return d.info(key, fi), nil
}

// Get implements Store.
func (d *Disk) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := d.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	full, _ := d.path(key)
	f, err := os.Open(full)
	if err != nil {
		return nil, ObjectInfo{}, mapFSError(key, err)
	}
	return f, info, nil
}

// List implements Store.
func (d *Disk) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, d.info(key, fi))
		return ctx.Err()
	})
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// SignedURL implements Store. Local directories cannot sign URLs.
func (d *Disk) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := d.Stat(ctx, key); err != nil {
		return "", err
	}
	return "", ErrUnsupported.New("signed URLs need an S3 backend")
}

// Ping implements Store.
func (d *Disk) Ping(ctx context.Context) error {
	if _, err := os.Stat(d.root); err != nil {
		return ErrUnavailable.Wrap(err)
	}
	return nil
}

func (d *Disk) info(key string, fi fs.FileInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		ContentType:  models.ContentTypeFor(key),
	}
}

func mapFSError(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound.New("%s", key)
	}
	return ErrUnavailable.Wrap(err)
}

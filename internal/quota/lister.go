package quota

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/store"
)

// CounterLister backs ObjectLister with the usage counters table. This
// is the production path: counters are maintained by UpdateStorageUsage
// as uploads and deletions flow through, so the check is a single read.
type CounterLister struct {
	usage store.UsageStore
}

// NewCounterLister creates a CounterLister over the given usage store.
func NewCounterLister(usage store.UsageStore) *CounterLister {
	return &CounterLister{usage: usage}
}

// UserUsage returns the counter value; a user with no counter row has
// zero stored bytes, not an error.
func (l *CounterLister) UserUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	used, err := l.usage.GetStorageUsage(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUsageNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return used, nil
}

// FilesystemLister sums object sizes under root/<userID>/. Used in
// local development where audio objects live on disk.
type FilesystemLister struct {
	root string
}

// NewFilesystemLister creates a FilesystemLister rooted at root.
func NewFilesystemLister(root string) *FilesystemLister {
	return &FilesystemLister{root: root}
}

// UserUsage walks the user's directory and sums file sizes. A missing
// directory means zero usage.
func (l *FilesystemLister) UserUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	dir := filepath.Join(l.root, userID.String())

	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	return total, nil
}

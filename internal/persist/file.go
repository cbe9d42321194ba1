package persist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
)

const snapshotVersion = 1

// snapshotFile is the on-disk JSON layout.
type snapshotFile struct {
	Version    int           `json:"version"`
	LastUpdate int64         `json:"lastUpdate"`
	Orders     []model.Order `json:"orders"`
}

// FileRepository persists snapshots as a single JSON document. Writes go to a
// temp file in the same directory followed by a rename, so a crash mid-write
// never corrupts the previous snapshot.
type FileRepository struct {
	path string
}

// NewFileRepository returns a FileRepository rooted at path. The parent
// directory is created on the first write.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// WriteSnapshot implements Repository.
func (r *FileRepository) WriteSnapshot(_ context.Context, orders []model.Order) error {
	doc := snapshotFile{
		Version:    snapshotVersion,
		LastUpdate: time.Now().UnixMilli(),
		Orders:     orders,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.New("persist", errs.CodeInvalid,
			errs.WithMessage("encode snapshot"), errs.WithCause(err))
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("create snapshot directory"), errs.WithCause(err))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("create temp snapshot"), errs.WithCause(err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("write temp snapshot"), errs.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("close temp snapshot"), errs.WithCause(err))
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("replace snapshot file"), errs.WithCause(err))
	}
	return nil
}

// ReadSnapshot implements Repository.
func (r *FileRepository) ReadSnapshot(_ context.Context) ([]model.Order, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.New("persist", errs.CodeUnavailable,
			errs.WithMessage("read snapshot file"), errs.WithCause(err))
	}
	var doc snapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.New("persist", errs.CodeInvalid,
			errs.WithMessage("decode snapshot file"),
			errs.WithRemediation("remove or repair the snapshot file"),
			errs.WithCause(err))
	}
	return doc.Orders, nil
}

// Close implements Repository.
func (r *FileRepository) Close() {}

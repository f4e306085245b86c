// Package fsutil holds small filesystem helpers shared by the config and token stores.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic replaces path with data. The data is written to a temporary
// file in the same directory, synced, given perm and renamed into place, so
// readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", path)
	}
	if err = tmp.Chmod(perm); err != nil {
		return errors.Wrapf(err, "chmod %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}

// ReadFileOptional reads path, returning nil content when it does not exist.
func ReadFileOptional(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

package reader

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteFileAtomic writes through a temporary file in the target directory
// and renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "write: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "write: create temp file")
	}
	name := tmp.Name()
	defer os.Remove(name) //nolint:errcheck

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "write: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "write: close temp file")
	}
	if err := os.Rename(name, path); err != nil {
		return eris.Wrapf(err, "write: rename to %s", path)
	}
	return nil
}

package tool

import (
	"os"
	"path/filepath"
)

func IsFileExists(filename string) (bool, error) {
	_, err := os.Stat(filename)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// WriteFileAtomic writes data to a temporary file next to filename, syncs it, then renames it over filename.
// A crash at any point leaves either the previous content or the new one, never a partial file.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	return WriteFileAtomicIf(filename, data, perm, nil)
}

// WriteFileAtomicIf is WriteFileAtomic with a precondition checked once the temporary file is complete,
// right before the rename. When precondition fails the target is left untouched and its error is returned.
func WriteFileAtomicIf(filename string, data []byte, perm os.FileMode, precondition func() error) error {
	dir := filepath.Dir(filename)

	f, err := os.CreateTemp(dir, "."+filepath.Base(filename)+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if precondition != nil {
		if err := precondition(); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}

	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

package preflight

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotReadable marks an asset path that cannot be opened for reading.
var ErrNotReadable = errors.New("asset not readable")

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// Readable returns an error wrapping ErrNotReadable when path is missing, is
// a directory, or lacks read permission for the current user.
func Readable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReadable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotReadable, path)
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotReadable, path, err)
	}
	return nil
}

// CheckAssetReadable wraps Readable as a Result.
func CheckAssetReadable(name, path string) Result {
	if err := Readable(path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// Package atomicfile writes a replacement for a file next to it and renames
// it into place only once every byte has been written and synced.
//
// If a Write, Sync or Close fails, the temporary file is removed and the
// destination is left untouched.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrCancelled is returned by calls made after Cancel
	ErrCancelled = errors.New("atomic write cancelled")

	_ io.WriteCloser = &File{}
)

type File struct {
	dstPath string
	dir     string
	tmpFile *os.File
	tmpPath string
	size    int64
	err     error
}

// New creates a temporary file in the directory of path. Nothing happens to
// path itself until Close.
func New(path string) (*File, error) {
	dir, name := filepath.Split(path)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return nil, err
	}

	return &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmp,
		tmpPath: tmp.Name(),
	}, nil
}

func (f *File) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(p)
	f.size += int64(n)
	return n, f.fail(err)
}

// Size returns the number of bytes written so far.
func (f *File) Size() int64 {
	return f.size
}

// Name returns the path of the temporary file.
func (f *File) Name() string {
	return f.tmpPath
}

func (f *File) closed() bool {
	return f.tmpFile == nil
}

// Cancel removes the temporary file without touching the destination.
// Cancel after Close is a no-op, so it can be deferred.
func (f *File) Cancel() {
	if f == nil || f.closed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs the temporary file and renames it over the destination. It
// can be called multiple times and always returns the first error.
func (f *File) Close() error {
	if f.closed() {
		return f.err
	}
	tmp := f.tmpFile
	f.tmpFile = nil

	errSync := tmp.Sync()
	errClose := tmp.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}

	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		renamed = err == nil
		if dir, _ := os.Open(f.dir); dir != nil {
			_ = dir.Sync()
			_ = dir.Close()
		}
	}

	f.err = err
	return err
}

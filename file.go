// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// LocalFile is a handle to a regular file opened for concurrent positional
// reads (and, in read-write mode, concurrent non-overlapping positional
// writes). Callers are responsible for guaranteeing that no two concurrent
// writes target overlapping offsets; positional I/O on a single *os.File is
// otherwise safe to use from multiple goroutines.
type LocalFile struct {
	Path     string
	Size     int64
	writable bool
	f        *os.File
}

// OpenLocalFile opens path and caches its size for the duration of a
// transfer. writable selects read-write mode; otherwise the file is opened
// read-only.
func OpenLocalFile(path string, writable bool) (*LocalFile, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, newErr(ErrIO, "OpenLocalFile", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(ErrIO, "OpenLocalFile: stat", err)
	}
	return &LocalFile{Path: path, Size: info.Size(), writable: writable, f: f}, nil
}

// Close releases the underlying file descriptor.
func (lf *LocalFile) Close() error {
	return lf.f.Close()
}

// ReadBlock reads exactly length bytes at offset. Reads may overlap freely
// across goroutines.
func (lf *LocalFile) ReadBlock(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(lf.f, offset, length), buf); err != nil {
		return nil, newErr(ErrIO, "ReadBlock", errors.Wrapf(err, "offset=%d length=%d", offset, length))
	}
	return buf, nil
}

// WriteBlock writes data at offset. It writes exactly len(data) bytes and
// never truncates or extends the file. Callers must guarantee no other
// concurrent write targets an overlapping offset range.
func (lf *LocalFile) WriteBlock(offset int64, data []byte) error {
	if !lf.writable {
		return newErr(ErrIO, "WriteBlock", errors.New("file opened read-only"))
	}
	if offset < 0 || offset+int64(len(data)) > lf.Size {
		return newErr(ErrIO, "WriteBlock", errors.Errorf("offset=%d length=%d outside file of size %d", offset, len(data), lf.Size))
	}
	if _, err := lf.f.WriteAt(data, offset); err != nil {
		return newErr(ErrIO, "WriteBlock", errors.Wrapf(err, "offset=%d length=%d", offset, len(data)))
	}
	return nil
}

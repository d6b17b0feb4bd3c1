// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"io"
	"os"
)

func statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// readExactly reads exactly n bytes from r, the same "no short reads
// survive" discipline ReadBlock/ReadFull apply to local files, applied here
// to an HTTP request body.
func readExactly(r io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// remoteLocationPattern matches HOST:PORT/PATH, e.g. "example.com:9876/data/big.img".
var remoteLocationPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+):(\d+)(/.*)$`)

// ParseLocation classifies s as LOCAL(path) or REMOTE(host, port, path).
func ParseLocation(s string) (Location, error) {
	if m := remoteLocationPattern.FindStringSubmatch(s); m != nil {
		port, err := strconv.Atoi(m[2])
		if err != nil {
			return Location{}, errors.Wrapf(err, "invalid port in location %q", s)
		}
		return Location{Local: false, Host: m[1], Port: port, Path: m[3]}, nil
	}
	return Location{Local: true, Path: s}, nil
}

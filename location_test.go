// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"testing"

	"github.com/hooklift/assert"
)

func TestParseLocationRemote(t *testing.T) {
	loc, err := ParseLocation("example.com:9876/data/big.img")
	assert.Ok(t, err)
	assert.Cond(t, !loc.Local, "expected a remote location")
	assert.Equals(t, "example.com", loc.Host)
	assert.Equals(t, 9876, loc.Port)
	assert.Equals(t, "/data/big.img", loc.Path)
}

func TestParseLocationLocal(t *testing.T) {
	loc, err := ParseLocation("/var/data/big.img")
	assert.Ok(t, err)
	assert.Cond(t, loc.Local, "expected a local location")
	assert.Equals(t, "/var/data/big.img", loc.Path)
}

func TestParseLocationRelativePathIsLocal(t *testing.T) {
	loc, err := ParseLocation("./relative/path.img")
	assert.Ok(t, err)
	assert.Cond(t, loc.Local, "a path without HOST:PORT should be treated as local")
}

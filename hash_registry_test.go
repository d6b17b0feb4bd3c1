// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"crypto/md5"
	"hash"
	"testing"

	"github.com/hooklift/assert"
)

func TestBuiltinHashMethodsRegistered(t *testing.T) {
	for _, name := range []string{"sha1", "md5", "sha256", "xxhash", "blake2b"} {
		m, ok := LookupHash(name)
		assert.Cond(t, ok, "expected %q to be registered", name)
		assert.Equals(t, name, m.Name)
		h := m.NewHash()
		h.Write([]byte("pdiffcopy"))
		assert.Equals(t, m.Size, len(h.Sum(nil)))
	}
}

func TestLookupUnknownHash(t *testing.T) {
	_, ok := LookupHash("does-not-exist")
	assert.Cond(t, !ok, "unknown method should not be found")
}

func TestRegisterHashAddsCustomMethod(t *testing.T) {
	RegisterHash("test-method", md5.Size, func() hash.Hash { return md5.New() })
	m, ok := LookupHash("test-method")
	assert.Cond(t, ok, "custom method should be registered")
	assert.Equals(t, md5.Size, m.Size)
}

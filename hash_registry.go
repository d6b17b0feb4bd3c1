// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/blake2b-simd"
	sha256simd "github.com/minio/sha256-simd"
)

// HashMethod describes a content digest algorithm both endpoints of a
// transfer must agree on by name.
type HashMethod struct {
	Name    string
	Size    int
	NewHash func() hash.Hash
}

var (
	hashRegistryMu sync.RWMutex
	hashRegistry   = map[string]HashMethod{}
)

// RegisterHash adds a hash method to the process-wide registry. Built-in
// methods register themselves from this file's init(); callers may add
// their own before starting a transfer.
func RegisterHash(name string, size int, newHash func() hash.Hash) {
	hashRegistryMu.Lock()
	defer hashRegistryMu.Unlock()
	hashRegistry[name] = HashMethod{Name: name, Size: size, NewHash: newHash}
}

// LookupHash returns the registered method for name, if any.
func LookupHash(name string) (HashMethod, bool) {
	hashRegistryMu.RLock()
	defer hashRegistryMu.RUnlock()
	m, ok := hashRegistry[name]
	return m, ok
}

func init() {
	RegisterHash("sha1", sha1.Size, func() hash.Hash { return sha1.New() })
	RegisterHash("md5", md5.Size, func() hash.Hash { return md5.New() })
	// sha256-simd is API-compatible with crypto/sha256 but dispatches to
	// AVX2/SHA-NI when available, which matters on the many-core boxes this
	// tool targets.
	RegisterHash("sha256", sha256simd.Size, func() hash.Hash { return sha256simd.New() })
	RegisterHash("xxhash", xxhash.Size, func() hash.Hash { return xxhash.New() })
	const blake2b256Size = 32
	RegisterHash("blake2b", blake2b256Size, func() hash.Hash { return blake2b.New256() })
}

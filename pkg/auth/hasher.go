/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PinHasher hashes and verifies PINs. Swapping the implementation passed to
// Open changes the scheme for every new hash.
type PinHasher interface {
	Hash(pin string) (string, error)
	Verify(pin, encoded string) bool
}

// DefaultSalt is prepended to every PIN by LegacyHasher.
const DefaultSalt = "VitalMon::pin::v1"

// LegacyHasher is the placeholder scheme: FNV-1a 64 over salt+PIN,
// rendered as 16 lowercase hex digits. It is not a password hash and must
// be replaced by Argon2Hasher on production devices.
type LegacyHasher struct {
	Salt string
}

func (h LegacyHasher) salt() string {
	if h.Salt == "" {
		return DefaultSalt
	}

	return h.Salt
}

func (h LegacyHasher) Hash(pin string) (string, error) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(h.salt()))
	_, _ = f.Write([]byte(pin))

	return fmt.Sprintf("%016x", f.Sum64()), nil
}

func (h LegacyHasher) Verify(pin, encoded string) bool {
	got, _ := h.Hash(pin)

	return subtle.ConstantTimeCompare([]byte(got), []byte(encoded)) == 1
}

const argon2Prefix = "argon2id"

// Argon2Hasher derives PIN hashes with Argon2id and a random per-hash salt.
// Encoded form: argon2id$<salt-hex>$<key-hex>.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// NewArgon2Hasher returns a hasher with interactive-login parameters.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
}

func (h *Argon2Hasher) derive(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
}

func (h *Argon2Hasher) Hash(pin string) (string, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailedToHash, err)
	}

	key := h.derive(pin, salt)

	return argon2Prefix + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

func (h *Argon2Hasher) Verify(pin, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != argon2Prefix {
		return false
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	want, err := hex.DecodeString(parts[2])
	if err != nil || len(want) != int(h.KeyLen) {
		return false
	}

	return subtle.ConstantTimeCompare(h.derive(pin, salt), want) == 1
}

// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn

import (
	"crypto/sha1"
)

// scramble computes Tarantool's chap-sha1 authentication reply from a
// password and the 20-byte (or fewer, base64-decoded) salt carried in
// the server's greeting banner (spec.md §6). original_source's
// Connection::prepare_auth/commit_auth delegate to an encodeAuth
// helper that is not part of the retrieved sources, so this is built
// directly from Tarantool's documented scheme rather than transliterated
// from original_source (see DESIGN.md):
//
//	step1 = SHA1(password)
//	step2 = SHA1(step1)
//	step3 = SHA1(salt[:20] || step2)
//	scramble = step1 XOR step3
//
// The server independently computes the same XOR against the stored
// step2 and the salt it issued, so it never sees the password.
func scramble(password string, salt []byte) []byte {
	if len(salt) > 20 {
		salt = salt[:20]
	}

	step1 := sha1.Sum([]byte(password))
	step2 := sha1.Sum(step1[:])

	h := sha1.New()
	h.Write(salt)
	h.Write(step2[:])
	step3 := h.Sum(nil)

	out := make([]byte, sha1.Size)
	for i := range out {
		out[i] = step1[i] ^ step3[i]
	}
	return out
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import "github.com/zeebo/blake3"

// DigestSize is the length of a body digest in bytes.
const DigestSize = 32

// bodyDomainKey keys the BLAKE3 body digest so it never collides with
// a plain hash of the same bytes computed elsewhere. Changing it
// breaks verification of every envelope already in flight.
var bodyDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 'c', 'l', 'u', 's', 't', 'e', 'r', 'b', 'r',
	'i', 'd', 'g', 'e', '.', 'b', 'o', 'd', 'y', 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the keyed BLAKE3 digest of an uncompressed body.
func Digest(body []byte) []byte {
	hasher, err := blake3.NewKeyed(bodyDomainKey[:])
	if err != nil {
		// Only a wrong key length fails, and the key is fixed-size.
		panic("envelope: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	return hasher.Sum(nil)
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash provides cheap integer mixing functions used as LRU bucket
// hashes. Content hashing of files lives in the identity package.
package hash // import "github.com/modhook/modhook/libhook/hash"

// Uint32 computes a hash of a 32-bit uint using the finalizer function for Murmur.
// 32-bit via https://en.wikipedia.org/wiki/MurmurHash#Algorithm
func Uint32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Uint64 computes a hash of a 64-bit uint using the finalizer function for Murmur3
// Via https://lemire.me/blog/2018/08/15/fast-strongly-universal-64-bit-hashing-everywhere/
func Uint64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Combine folds a second 64-bit value into an existing hash.
func Combine(h, v uint64) uint64 {
	return Uint64(h ^ (v + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)))
}

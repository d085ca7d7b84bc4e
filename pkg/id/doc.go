// Package id provides a 128-bit, lexicographically sortable identifier used
// to tag requests in access logs.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves generation order.
//
// Usage
//
//	g := id.NewGenerator(nil)
//	rid := g.Next().String() // 32 hex chars
package id

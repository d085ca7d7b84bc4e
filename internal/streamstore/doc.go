// Package streamstore is a Pebble-backed implementation of stream.Client.
//
// Each stream has a JSON meta record holding its epoch, replica count, tags
// and offsets, and one entry per appended batch keyed by the batch's base
// offset. Stream ids come from a persisted counter. Writes are fenced by
// epoch: a handle whose epoch is older than the stored one gets
// stream.ErrFenced.
//
// Keyspace (byte-wise, lexicographically sortable):
//
//	st/ctr
//	st/{id_be8}/m
//	st/{id_be8}/b/{offset_be8}
package streamstore

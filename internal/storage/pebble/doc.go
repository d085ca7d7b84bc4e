// Package pebblestore wraps Pebble with an fsync policy, batches, snapshots,
// range deletes and a metrics hook. It is the durable tier under stream data
// and the catalog.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dir,
//	    Fsync:   pebblestore.FsyncModeInterval,
//	    Metrics: &pebblestore.Stats{},
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore

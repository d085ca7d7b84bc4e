// Package stream defines the storage capability used by strata brokers and
// the LazyStream handle built on top of it.
//
// # Overview
//
// A Stream is an ordered, append-only durable log identified by a numeric id
// and owned by one epoch holder at a time. A Client creates and opens streams.
// Every storage operation is asynchronous and returns a *future.Future.
//
// LazyStream lets a broker hold a Stream before the durable resource exists:
//
//	ls, err := stream.OpenLazy(ctx, client, stream.LazyOptions{
//	    Name:         "orders-0",
//	    StreamID:     stream.InvalidStreamID, // deferred: created on first append
//	    ReplicaCount: 1,
//	    Epoch:        3,
//	})
//	ls.SetListener(stream.EventListenerFunc(func(id int64, ev stream.MetaEvent) error {
//	    return catalog.Record(id) // persist the new id
//	}))
//	res, err := ls.Append(ctx, stream.RecordBatch{Count: 1, Payload: p}).Get(ctx)
//
// Until the first append (or WarmUp) the handle forwards to an inert
// placeholder: offsets are 0, fetch returns nothing, trim/close/destroy
// succeed. Exactly one creation request is issued per handle no matter how
// many appends race for it.
package stream

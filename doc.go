// Package offcache implements the client-side caching and offline-sync
// engine for feature screens that render server-computed data: time-bounded
// cached reads, request coalescing, graceful degradation to stale or
// synthetic values, and an ordered durable outbox for mutations recorded
// while offline.
//
// Components:
//   - Cache[V]: per-domain read cache. One instance per request kind
//     ("quotes", "options", ...); concurrent Gets for the same parameter set
//     share a single fetch, and a failed fetch falls back to the freshest
//     known entry (origin STALE) or a synthetic placeholder (origin SYNTHETIC).
//   - blobstore.Store: durable key-value blob contract (file, redis).
//   - codec.Codec[V]: (de)serializes snapshot payloads (JSON, Msgpack, CBOR,
//     Protobuf).
//   - outbox.Queue: strict-FIFO pending-action queue, journaled to a Store on
//     every mutation.
//   - netmon.Monitor: online/offline transitions, exactly once per flip.
//   - syncer.Coordinator: drains the outbox on reconnect or on a schedule.
//
// Read pattern:
//
//	quotes, _ := offcache.New[QuoteBook](offcache.Options[QuoteBook]{
//	    Namespace:  "quotes",
//	    DefaultTTL: offcache.TTLQuote,
//	    Synthetic:  sampleQuoteBook,
//	    Logger:     zaplog.Logger{L: zl},
//	})
//	res, err := quotes.Get(ctx, []string{"MSFT", "AAPL"}, client.FetchQuotes)
//	// res.Origin tells the UI whether to show a "cached/sample data" badge.
//
// Write pattern:
//
//	q, _ := outbox.Open(ctx, store, "outbox:trades", outbox.Options{})
//	id := q.Enqueue(outbox.Action{Kind: "trade-submission", Payload: body})
//	co := syncer.New(q, applier, monitor, syncer.Options{})
//	co.Start(ctx) // drains on reconnect and every 5 minutes while online
package offcache

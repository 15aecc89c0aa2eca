// Package chunkcache caches a very large row-indexed weight matrix across
// two memory tiers. The full matrix lives in a host tier, partitioned into
// fixed-size chunks; a bounded working set of chunks is swapped into a
// smaller, faster tier while batches are processed.
//
// A batch of row ids is served by PrepareIDs, which translates each id into
// a fast-tier address: it resolves ids to chunks through a static index
// mapping table, admits the chunks that are not yet resident (evicting
// others under a pluggable scoring policy), and only then returns the
// addresses. The batch's whole working set is pinned during admission, so
// the cache can never evict a chunk the same batch still needs.
//
// Basic usage:
//
//	weights := make([]float32, numRows*dim)
//	mgr, err := chunkcache.New(weights, numRows, dim,
//		chunkcache.WithChunkSize(1024),
//		chunkcache.WithCapacity(64),
//		chunkcache.WithFrequencies(freqs),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	addrs, err := mgr.PrepareIDs(ctx, batch)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, a := range addrs {
//		row := mgr.Row(a) // feed to the pooling operator
//		_ = row
//	}
//
// Calls must be serialized by the caller: one PrepareIDs per training step
// from one control goroutine. Flush writes all resident chunks back to the
// host tier before checkpointing or shutdown; Checkpoint and Restore persist
// the host matrix through a blobstore.Store backend (memory, local disk,
// S3 or MinIO).
package chunkcache

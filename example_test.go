package chunkcache_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/chunkcache"
)

func Example() {
	const (
		numRows = 8
		dim     = 2
	)

	weights := make([]float32, numRows*dim)
	for i := range weights {
		weights[i] = float32(i)
	}

	mgr, err := chunkcache.New(weights, numRows, dim,
		chunkcache.WithChunkSize(2),
		chunkcache.WithCapacity(2),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	addrs, err := mgr.PrepareIDs(context.Background(), []uint32{0, 1, 2})
	if err != nil {
		log.Fatal(err)
	}

	for i, addr := range addrs {
		fmt.Printf("id %d -> row %v\n", i, mgr.Row(addr))
	}

	stats := mgr.Stats()
	fmt.Printf("misses: %d\n", stats.Misses)

	// Output:
	// id 0 -> row [0 1]
	// id 1 -> row [2 3]
	// id 2 -> row [4 5]
	// misses: 2
}

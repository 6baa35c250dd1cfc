package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/hupe1980/shmtree"
	"github.com/hupe1980/shmtree/codec"
	"github.com/hupe1980/shmtree/shm"
)

func main() {
	seed := int64(4711)
	capacity := uint32(100_000)

	payload := codec.Pair(codec.Uint64(), codec.Uint64())

	region, err := shm.CreateAnon(shmtree.RegionSize(capacity, payload.Size()))
	if err != nil {
		log.Fatal(err)
	}
	defer region.Close()

	tree, err := shmtree.New[uint64, codec.KV[uint64, uint64]](shmtree.Create, region, func(o *shmtree.Options[uint64, codec.KV[uint64, uint64]]) {
		o.Capacity = capacity
		o.Payload = payload
		o.KeyOf = func(v codec.KV[uint64, uint64]) uint64 { return v.First }
		o.Less = shmtree.OrderedLess[uint64]()
	})
	if err != nil {
		log.Fatal(err)
	}

	rng := rand.New(rand.NewSource(seed))
	keys := rng.Perm(int(capacity))

	fmt.Println("--- Insert ---")
	fmt.Println("Capacity:", capacity)

	start := time.Now()
	for _, k := range keys {
		if _, err := tree.InsertUnique(codec.KV[uint64, uint64]{First: uint64(k), Second: uint64(k) * 2}); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println("Insert took:", time.Since(start))

	fmt.Println("--- Lookup ---")
	start = time.Now()
	hits := 0
	for i := 0; i < 10_000; i++ {
		if tree.Find(uint64(rng.Intn(int(capacity)))).Valid() {
			hits++
		}
	}
	fmt.Printf("10000 lookups (%d hits) took: %s\n", hits, time.Since(start))

	fmt.Println("--- Range scan ---")
	start = time.Now()
	n := 0
	for it := tree.LowerBound(1000); it.Valid(); it.Next() {
		k, _ := it.Key()
		if k >= 2000 {
			break
		}
		n++
	}
	fmt.Printf("scanned %d keys in [1000, 2000) in %s\n", n, time.Since(start))
}

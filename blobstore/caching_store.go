package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shmtree/internal/cache"
)

// CachingStore wraps a BlobStore and adds block-level read caching, for
// remote backends where every ReadAt is a round trip.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a CachingStore. blockSize defaults to 4KB if <= 0.
func NewCachingStore(inner BlobStore, blockCache cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &CachingStore{
		inner:     inner,
		cache:     blockCache,
		blockSize: blockSize,
	}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{
		inner:     b,
		cache:     s.cache,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

// Create passes through; only reads are cached. Blobs are immutable, so a
// created name cannot carry stale blocks.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Invalidate(func(key cache.Key) bool {
		return key.Name == name
	})
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Invalidate(func(key cache.Key) bool {
		return key.Name == name
	})
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// cachingBlob serves reads block by block out of the cache, filling missing
// runs from the inner blob in parallel.
type cachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *cachingBlob) Close() error {
	return b.inner.Close()
}

func (b *cachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(p)) - 1) / b.blockSize

	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	totalRead := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize

		// Intersection of this block with the requested range.
		intersectStart := max(blkStart, off)
		intersectEnd := min(blkStart+b.blockSize, off+int64(len(p)))
		if intersectEnd <= intersectStart {
			continue
		}
		copySize := int(intersectEnd - intersectStart)
		dstOffset := intersectStart - off

		blockData, err := b.fetchBlock(ctx, blk)
		if err != nil {
			return totalRead, err
		}

		srcOffset := intersectStart - blkStart
		if srcOffset+int64(copySize) > int64(len(blockData)) {
			// Short final block.
			copySize = len(blockData) - int(srcOffset)
		}
		if copySize > 0 {
			totalRead += copy(p[dstOffset:dstOffset+int64(copySize)], blockData[srcOffset:])
		}
	}

	if totalRead < len(p) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// fillCache loads the missing blocks of [startBlock, endBlock] into the
// cache, coalescing contiguous runs into single backend reads and fetching
// runs in parallel.
func (b *cachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type run struct {
		start, count int64
	}
	var missing []run

	runStart := int64(-1)
	runCount := int64(0)
	for blk := startBlock; blk <= endBlock; blk++ {
		key := cache.Key{Name: b.name, Block: uint64(blk)}
		if _, ok := b.cache.Get(ctx, key); !ok {
			if runStart == -1 {
				runStart = blk
			}
			runCount++
		} else if runStart != -1 {
			missing = append(missing, run{runStart, runCount})
			runStart = -1
			runCount = 0
		}
	}
	if runStart != -1 {
		missing = append(missing, run{runStart, runCount})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for _, r := range missing {
		r := r
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteSize := r.count * b.blockSize

			size := b.Size()
			if byteStart >= size {
				return nil
			}
			if byteStart+byteSize > size {
				byteSize = size - byteStart
			}

			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n == 0 {
				return nil
			}
			valid := buf[:n]

			for i := int64(0); i < r.count; i++ {
				offsetInRun := i * b.blockSize
				if offsetInRun >= int64(len(valid)) {
					break
				}
				endInRun := min(offsetInRun+b.blockSize, int64(len(valid)))

				// Copy so cached blocks do not pin the run buffer.
				blockCopy := make([]byte, endInRun-offsetInRun)
				copy(blockCopy, valid[offsetInRun:endInRun])

				b.cache.Set(gctx, cache.Key{Name: b.name, Block: uint64(r.start + i)}, blockCopy)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *cachingBlob) fetchBlock(ctx context.Context, blk int64) ([]byte, error) {
	key := cache.Key{Name: b.name, Block: uint64(blk)}
	if data, ok := b.cache.Get(ctx, key); ok {
		return data, nil
	}

	// The cache may have evicted the block between fillCache and here; read
	// it directly.
	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	valid := buf[:n]
	if n > 0 {
		b.cache.Set(ctx, key, valid)
	}
	return valid, nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(&contextSectionReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// contextSectionReader adapts the context-aware ReadAt to io.Reader.
type contextSectionReader struct {
	blob  *cachingBlob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *contextSectionReader) Read(p []byte) (n int, err error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	return n, err
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/shmtree/blobstore"
	"github.com/hupe1980/shmtree/internal/resource"
)

var (
	// ErrManagerClosed is returned when operations are attempted on a
	// closed manager.
	ErrManagerClosed = errors.New("snapshot manager is closed")

	// ErrNoSnapshot is returned by Load when no snapshot has been committed
	// yet.
	ErrNoSnapshot = errors.New("no snapshot committed")
)

// currentName is the pointer blob naming the latest committed snapshot.
const currentName = "CURRENT"

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Prefix is prepended to snapshot blob names.
	Prefix string

	// Compression selects the snapshot codec. Default: none.
	Compression Compression

	// Controller, when set, bounds transfer concurrency and IO throughput.
	Controller *resource.Controller

	// Logger receives operational events. Default: slog.Default().
	Logger *slog.Logger
}

// Manager drives snapshot save and load against a blob store, keeping a
// CURRENT pointer at the latest committed snapshot. Operations are
// synchronous; the caller decides when to snapshot and must hold whatever
// lock protects the region while Save reads it.
//
// With a plain store the CURRENT update is last-writer-wins; wrap the store
// in an s3.DDBCommitStore (or any store with atomic Put of CURRENT) when
// multiple writers may commit.
type Manager struct {
	store blobstore.BlobStore
	opts  ManagerOptions

	mu     sync.Mutex
	closed bool
}

// NewManager creates a snapshot manager over store.
func NewManager(store blobstore.BlobStore, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Logger: slog.Default(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store: store,
		opts:  opts,
	}
}

// Save encodes region into a new snapshot blob and commits it as CURRENT.
// It returns the blob name.
func (m *Manager) Save(ctx context.Context, region []byte) (string, error) {
	if err := m.begin(ctx); err != nil {
		return "", err
	}
	defer m.opts.Controller.ReleaseTransfer()

	name := fmt.Sprintf("%s%020d.snap", m.opts.Prefix, time.Now().UnixNano())

	w, err := m.store.Create(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create snapshot blob %s: %w", name, err)
	}

	var out io.Writer = w
	if m.opts.Controller != nil {
		out = resource.NewRateLimitedWriter(ctx, w, m.opts.Controller)
	}

	n, err := WriteSnapshot(out, region, m.opts.Compression)
	if err != nil {
		w.Close()
		// Best effort; an uncommitted blob is garbage either way.
		_ = m.store.Delete(ctx, name)
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		_ = m.store.Delete(ctx, name)
		return "", fmt.Errorf("finalize snapshot %s: %w", name, err)
	}

	if err := m.store.Put(ctx, currentName, []byte(name)); err != nil {
		_ = m.store.Delete(ctx, name)
		return "", fmt.Errorf("commit snapshot %s: %w", name, err)
	}

	m.opts.Logger.InfoContext(ctx, "snapshot saved",
		slog.String("name", name),
		slog.Int64("bytes", n),
		slog.String("compression", m.opts.Compression.String()),
	)
	return name, nil
}

// Load reads the CURRENT snapshot, verifies it and returns its header and
// raw region image.
func (m *Manager) Load(ctx context.Context) (*Header, []byte, error) {
	if err := m.begin(ctx); err != nil {
		return nil, nil, err
	}
	defer m.opts.Controller.ReleaseTransfer()

	name, err := m.Current(ctx)
	if err != nil {
		return nil, nil, err
	}

	blob, err := m.store.Open(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot %s: %w", name, err)
	}
	defer blob.Close()

	rng, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}
	defer rng.Close()

	var in io.Reader = rng
	if m.opts.Controller != nil {
		in = resource.NewRateLimitedReader(ctx, rng, m.opts.Controller)
	}

	hdr, img, err := ReadSnapshot(in)
	if err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}

	m.opts.Logger.InfoContext(ctx, "snapshot loaded",
		slog.String("name", name),
		slog.Int("region_bytes", len(img)),
	)
	return hdr, img, nil
}

// Current returns the name of the latest committed snapshot.
func (m *Manager) Current(ctx context.Context) (string, error) {
	blob, err := m.store.Open(ctx, currentName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", ErrNoSnapshot
		}
		return "", fmt.Errorf("open %s: %w", currentName, err)
	}
	defer blob.Close()

	buf := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", currentName, err)
	}
	if len(buf) == 0 {
		return "", ErrNoSnapshot
	}
	return string(buf), nil
}

// List returns all snapshot blob names, oldest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.store.List(ctx, m.opts.Prefix)
	if err != nil {
		return nil, err
	}
	snaps := names[:0]
	for _, n := range names {
		if n != currentName {
			snaps = append(snaps, n)
		}
	}
	sort.Strings(snaps)
	return snaps, nil
}

// Prune deletes all but the newest keep snapshots. The CURRENT snapshot is
// never deleted.
func (m *Manager) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	snaps, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(snaps) <= keep {
		return nil
	}

	current, err := m.Current(ctx)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return err
	}

	for _, name := range snaps[:len(snaps)-keep] {
		if name == current {
			continue
		}
		if err := m.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("prune snapshot %s: %w", name, err)
		}
		m.opts.Logger.InfoContext(ctx, "snapshot pruned", slog.String("name", name))
	}
	return nil
}

// Close marks the manager closed. In-flight operations finish normally.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Manager) begin(ctx context.Context) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrManagerClosed
	}
	return m.opts.Controller.AcquireTransfer(ctx)
}

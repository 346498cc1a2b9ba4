package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/cubestore/blobstore"
	"github.com/hupe1980/cubestore/codec"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
)

const (
	// ManifestFileName prefixes every manifest version blob.
	ManifestFileName = "MANIFEST"
	// CurrentFileName names the blob pointing at the live manifest version.
	CurrentFileName = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
	// MaxCommitRetries bounds how often a change that lost to a concurrent
	// writer is reapplied to the reloaded manifest.
	MaxCommitRetries = 8
)

// manifest is the persisted state of one dataset.
type manifest struct {
	Version   int               `json:"version"`
	ID        uint64            `json:"id"`
	Dataset   Descriptor        `json:"dataset"`
	Fragments []fragment.Record `json:"fragments"`
}

// Manifest is a Catalog over a blob store.
//
// Every dataset lives under its own prefix. Each change writes a new manifest
// version named MANIFEST-<id>.<codec> and then swaps the CURRENT blob to it;
// the codec name in the file name selects the decoder on load.
//
// On a store implementing blobstore.Committer, such as s3.DDBCommitStore,
// the swap is conditional on the version that was read, so processes sharing
// the store do not lose each other's changes. Version files then carry a
// writer token, MANIFEST-<id>-<token>.<codec>, and a change that loses the
// swap is reapplied to the newer manifest.
type Manifest struct {
	store blobstore.BlobStore
	codec codec.Codec

	mu     sync.Mutex
	cache  map[string]*manifest
	closed bool
}

var _ Catalog = (*Manifest)(nil)

// NewManifest returns a catalog keeping its manifests in store. A nil codec
// selects codec.Default.
func NewManifest(store blobstore.BlobStore, c codec.Codec) *Manifest {
	if c == nil {
		c = codec.Default
	}
	return &Manifest{store: store, codec: c, cache: make(map[string]*manifest)}
}

// NewMemory returns a catalog backed by a blobstore.MemoryStore.
func NewMemory() *Manifest {
	return NewManifest(blobstore.NewMemoryStore(), nil)
}

// CreateDataset implements Catalog.
func (m *Manifest) CreateDataset(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	return m.update(ctx, d.Name, func(cur *manifest) (*manifest, error) {
		if cur != nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, d.Name)
		}
		return &manifest{Version: CurrentVersion, Dataset: d}, nil
	})
}

// Dataset implements Catalog.
func (m *Manifest) Dataset(ctx context.Context, name string) (Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Descriptor{}, ErrClosed
	}

	man, err := m.load(ctx, name)
	if err != nil {
		return Descriptor{}, err
	}
	return man.Dataset, nil
}

// Datasets implements Catalog.
func (m *Manifest) Datasets(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	names, err := m.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		dir, file := path.Split(n)
		if file == CurrentFileName && dir != "" {
			out = append(out, strings.TrimSuffix(dir, "/"))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Save implements Catalog.
func (m *Manifest) Save(ctx context.Context, dataset string, records []fragment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	return m.update(ctx, dataset, func(cur *manifest) (*manifest, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dataset)
		}
		next := *cur
		next.Fragments = merge(append([]fragment.Record(nil), cur.Fragments...), records)
		return &next, nil
	})
}

// Delete implements Catalog.
func (m *Manifest) Delete(ctx context.Context, dataset string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	return m.update(ctx, dataset, func(cur *manifest) (*manifest, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dataset)
		}
		next := *cur
		next.Fragments = without(cur.Fragments, ids)
		return &next, nil
	})
}

// Lookup implements Catalog.
func (m *Manifest) Lookup(ctx context.Context, dataset string, query hypercube.Hypercube) ([]fragment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	man, err := m.load(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return filter(man.Fragments, query)
}

// DeleteDataset implements Catalog.
func (m *Manifest) DeleteDataset(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	blobs, err := m.store.List(ctx, name+"/")
	if err != nil {
		return err
	}
	if len(blobs) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	// CURRENT goes first so a partial delete leaves no live dataset behind.
	if err := m.store.Delete(ctx, path.Join(name, CurrentFileName)); err != nil {
		return err
	}
	delete(m.cache, name)
	for _, b := range blobs {
		if err := m.store.Delete(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Catalog. It does not close the blob store.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cache = nil
	return nil
}

func (m *Manifest) load(ctx context.Context, name string) (*manifest, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if man, ok := m.cache[name]; ok {
		return man, nil
	}

	for attempt := 0; ; attempt++ {
		man, err := m.read(ctx, name)
		if err == nil {
			m.cache[name] = man
			return man, nil
		}
		// The version CURRENT named was replaced and deleted before it was read.
		if !errors.Is(err, blobstore.ErrNotFound) || attempt >= MaxCommitRetries {
			return nil, err
		}
	}
}

func (m *Manifest) read(ctx context.Context, name string) (*manifest, error) {
	current, err := blobstore.ReadAll(ctx, m.store, path.Join(name, CurrentFileName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	file := string(current)
	c, ok := codec.ByName(strings.TrimPrefix(path.Ext(file), "."))
	if !ok {
		return nil, fmt.Errorf("catalog: manifest %s/%s: unknown codec", name, file)
	}
	data, err := blobstore.ReadAll(ctx, m.store, path.Join(name, file))
	if err != nil {
		return nil, fmt.Errorf("catalog: open manifest %s/%s: %w", name, file, err)
	}

	man := &manifest{}
	if err := c.Unmarshal(data, man); err != nil {
		return nil, fmt.Errorf("catalog: decode manifest %s/%s: %w", name, file, err)
	}
	if man.Version != CurrentVersion {
		return nil, fmt.Errorf("catalog: unsupported manifest version %d (expected %d)", man.Version, CurrentVersion)
	}
	return man, nil
}

// update applies change to the live manifest of name, nil if there is none,
// and saves the result. A save that lost to a concurrent writer is retried on
// the reloaded manifest. m.mu must be held.
func (m *Manifest) update(ctx context.Context, name string, change func(cur *manifest) (*manifest, error)) error {
	for attempt := 0; ; attempt++ {
		cur, err := m.load(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		next, err := change(cur)
		if err != nil {
			return err
		}

		err = m.save(ctx, next)
		if err == nil || !errors.Is(err, blobstore.ErrConflict) || attempt >= MaxCommitRetries {
			return err
		}
		delete(m.cache, name)
	}
}

func (m *Manifest) save(ctx context.Context, man *manifest) error {
	name := man.Dataset.Name
	prev := man.ID
	man.Version = CurrentVersion
	man.ID++

	data, err := m.codec.Marshal(man)
	if err != nil {
		return err
	}

	committer, conditional := m.store.(blobstore.Committer)
	token := ""
	if conditional {
		token = uuid.NewString()[:8]
	}
	file := manifestFile(man.ID, token, m.codec.Name())
	if err := m.store.Put(ctx, path.Join(name, file), data); err != nil {
		return err
	}

	pointer := path.Join(name, CurrentFileName)
	if conditional {
		if err := committer.Commit(ctx, pointer, []byte(file), man.ID); err != nil {
			_ = m.store.Delete(ctx, path.Join(name, file))
			return err
		}
	} else if err := m.store.Put(ctx, pointer, []byte(file)); err != nil {
		return err
	}
	m.cache[name] = man

	if prev > 0 {
		m.deleteVersions(ctx, name, man.ID)
	}
	return nil
}

// deleteVersions removes the manifest versions of name older than live.
// Failures leave stale versions behind and are ignored.
func (m *Manifest) deleteVersions(ctx context.Context, name string, live uint64) {
	blobs, err := m.store.List(ctx, path.Join(name, ManifestFileName))
	if err != nil {
		return
	}
	for _, b := range blobs {
		if id, ok := parseManifestID(path.Base(b)); ok && id < live {
			_ = m.store.Delete(ctx, b)
		}
	}
}

func manifestFile(id uint64, token, codecName string) string {
	if token == "" {
		return fmt.Sprintf("%s-%06d.%s", ManifestFileName, id, codecName)
	}
	return fmt.Sprintf("%s-%06d-%s.%s", ManifestFileName, id, token, codecName)
}

// parseManifestID returns the version id of a manifest file name.
func parseManifestID(file string) (uint64, bool) {
	s := strings.TrimPrefix(file, ManifestFileName+"-")
	if s == file {
		return 0, false
	}
	if i := strings.IndexAny(s, "-."); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil
}

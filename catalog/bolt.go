package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/cubestore/codec"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
)

var (
	metaBucket      = []byte("meta")
	datasetsBucket  = []byte("datasets")
	fragmentsBucket = []byte("fragments")

	codecKey = []byte("codec")
)

// Bolt is a Catalog kept in a bbolt database file.
//
// Descriptors live in the datasets bucket keyed by name; the records of a
// dataset live in a nested bucket of the fragments bucket keyed by fragment
// id. The codec the file was created with is kept in the meta bucket.
type Bolt struct {
	db    *bolt.DB
	codec codec.Codec
}

var _ Catalog = (*Bolt)(nil)

// BoltOptions configures OpenBolt.
type BoltOptions struct {
	// Codec encodes new databases. Existing databases keep their codec.
	// Defaults to codec.Default.
	Codec codec.Codec
	// Timeout bounds the wait for the file lock. Defaults to one second.
	Timeout time.Duration
	// ReadOnly opens the database without write access.
	ReadOnly bool
}

// OpenBolt opens or creates the catalog file at path.
func OpenBolt(path string, opts BoltOptions) (*Bolt, error) {
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.Timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	c := &Bolt{db: db, codec: opts.Codec}
	if err := c.init(opts.ReadOnly); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Bolt) init(readOnly bool) error {
	if readOnly {
		return c.db.View(func(tx *bolt.Tx) error {
			return c.useStoredCodec(tx.Bucket(metaBucket))
		})
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, datasetsBucket, fragmentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(codecKey) == nil {
			return meta.Put(codecKey, []byte(c.codec.Name()))
		}
		return c.useStoredCodec(meta)
	})
}

func (c *Bolt) useStoredCodec(meta *bolt.Bucket) error {
	if meta == nil {
		return nil
	}
	name := meta.Get(codecKey)
	if name == nil {
		return nil
	}
	stored, ok := codec.ByName(string(name))
	if !ok {
		return fmt.Errorf("catalog: unknown codec %q", name)
	}
	c.codec = stored
	return nil
}

// Codec returns the codec records are encoded with.
func (c *Bolt) Codec() codec.Codec { return c.codec }

// CreateDataset implements Catalog.
func (c *Bolt) CreateDataset(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := c.codec.Marshal(d)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		datasets := tx.Bucket(datasetsBucket)
		if datasets.Get([]byte(d.Name)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, d.Name)
		}
		if err := datasets.Put([]byte(d.Name), data); err != nil {
			return err
		}
		_, err := tx.Bucket(fragmentsBucket).CreateBucketIfNotExists([]byte(d.Name))
		return err
	})
}

// Dataset implements Catalog.
func (c *Bolt) Dataset(ctx context.Context, name string) (Descriptor, error) {
	var d Descriptor
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(datasetsBucket).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return c.codec.Unmarshal(data, &d)
	})
	return d, err
}

// Datasets implements Catalog.
func (c *Bolt) Datasets(ctx context.Context) ([]string, error) {
	var out []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(datasetsBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Save implements Catalog.
func (c *Bolt) Save(ctx context.Context, dataset string, records []fragment.Record) error {
	encoded := make([][]byte, len(records))
	for i, r := range records {
		data, err := c.codec.Marshal(r)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		frags := tx.Bucket(fragmentsBucket).Bucket([]byte(dataset))
		if frags == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, dataset)
		}
		for i, r := range records {
			if err := frags.Put([]byte(r.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete implements Catalog.
func (c *Bolt) Delete(ctx context.Context, dataset string, ids []string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		frags := tx.Bucket(fragmentsBucket).Bucket([]byte(dataset))
		if frags == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, dataset)
		}
		for _, id := range ids {
			if err := frags.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lookup implements Catalog.
func (c *Bolt) Lookup(ctx context.Context, dataset string, query hypercube.Hypercube) ([]fragment.Record, error) {
	var records []fragment.Record
	err := c.db.View(func(tx *bolt.Tx) error {
		frags := tx.Bucket(fragmentsBucket).Bucket([]byte(dataset))
		if frags == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, dataset)
		}
		return frags.ForEach(func(k, v []byte) error {
			var r fragment.Record
			if err := c.codec.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("catalog: decode record %s/%s: %w", dataset, k, err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return filter(records, query)
}

// DeleteDataset implements Catalog.
func (c *Bolt) DeleteDataset(ctx context.Context, name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		datasets := tx.Bucket(datasetsBucket)
		if datasets.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := datasets.Delete([]byte(name)); err != nil {
			return err
		}
		err := tx.Bucket(fragmentsBucket).DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Close implements Catalog.
func (c *Bolt) Close() error {
	return c.db.Close()
}

package blob

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

var _ port.BlobStore = (*Bolt)(nil)

var bucketArtifacts = []byte("artifacts")

// Bolt stores artifacts in a single bbolt bucket.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the bbolt database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketArtifacts); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketArtifacts, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func (s *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("blob %s: %w", key, domain.ErrNotFound)
		}
		// bbolt memory is only valid inside the transaction.
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	return out, err
}

func (s *Bolt) PutAll(_ context.Context, blobs []port.Blob) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		for _, blob := range blobs {
			if err := b.Put([]byte(blob.Key), blob.Data); err != nil {
				return fmt.Errorf("put %s: %w", blob.Key, err)
			}
		}
		return nil
	})
}

func (s *Bolt) Delete(_ context.Context, keys ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

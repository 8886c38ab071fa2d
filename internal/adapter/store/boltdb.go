package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docchat/internal/domain"
)

// bucketMeta holds per-collection schema info. Every other top-level bucket
// is a collection of chunks.
var bucketMeta = []byte("meta")

// OpenDB opens the index file at path, creating it and its directory if
// needed. A file locked by another process fails after one second instead of
// blocking.
func OpenDB(path string) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, domain.StorageError("create index dir", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, domain.StorageError("open bolt db", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, domain.StorageError("create meta bucket", err)
	}

	return db, nil
}

// Collections lists the collection names stored in db.
func Collections(db *bbolt.DB) ([]string, error) {
	var names []string
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if string(name) != string(bucketMeta) {
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.StorageError("list collections", err)
	}
	sort.Strings(names)
	return names, nil
}

func validateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if name == string(bucketMeta) {
		return fmt.Errorf("collection name %q is reserved", name)
	}
	return nil
}

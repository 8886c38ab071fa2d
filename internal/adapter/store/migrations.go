package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// SchemaInfo records how a collection was built. It lives in the meta bucket
// under the collection name.
type SchemaInfo struct {
	Version       int    `json:"version"`
	EmbeddingHash string `json:"embedding_hash"`
	Model         string `json:"model"`
	Dimension     int    `json:"dimension"`
}

// ComputeEmbeddingHash identifies an embedding space. Vectors from spaces
// with different hashes are not comparable.
func ComputeEmbeddingHash(model string, dimension int) string {
	relevant := struct {
		Model     string `json:"model"`
		Dimension int    `json:"dimension"`
	}{model, dimension}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

func currentSchemaInfo(embedder port.Embedder, dimension int) SchemaInfo {
	return SchemaInfo{
		Version:       CurrentSchemaVersion,
		EmbeddingHash: ComputeEmbeddingHash(embedder.ModelName(), dimension),
		Model:         embedder.ModelName(),
		Dimension:     dimension,
	}
}

func putSchemaInfo(tx *bbolt.Tx, collection []byte, info SchemaInfo) error {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return fmt.Errorf("meta bucket not found")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return b.Put(collection, data)
}

func deleteSchemaInfo(tx *bbolt.Tx, collection []byte) error {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return nil
	}
	return b.Delete(collection)
}

// SchemaInfo returns the stored schema info; the zero value means the
// collection has never been written.
func (s *BoltIndex) SchemaInfo() (SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		data := b.Get(s.collection)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return SchemaInfo{}, domain.StorageError("read schema info", err)
	}
	return info, nil
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

// CheckMigration compares the stored schema with the current embedder.
func (s *BoltIndex) CheckMigration() (*MigrationResult, error) {
	info, err := s.SchemaInfo()
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		return result, nil
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("index created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	model := s.embedder.ModelName()
	dimension := s.embedder.Dimension()
	if info.Model != model || (dimension > 0 && info.Dimension != dimension) {
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding model changed from %s (%d) to %s (%d)", info.Model, info.Dimension, model, dimension)
	} else if info.EmbeddingHash != ComputeEmbeddingHash(info.Model, info.Dimension) {
		result.NeedsRebuild = true
		result.Reason = "schema info is inconsistent"
	}

	return result, nil
}

// NeedsRebuild reports whether the collection must be cleared before the
// current embedder can use it.
func (s *BoltIndex) NeedsRebuild() (bool, string, error) {
	result, err := s.CheckMigration()
	if err != nil {
		return false, "", err
	}
	return result.NeedsRebuild, result.Reason, nil
}

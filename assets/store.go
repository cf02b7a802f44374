package assets

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"pet-video-pipeline/types"
)

// Store is a content-addressed cache for generated and ingested media.
// Identical bytes always map to the same identifier, so repeated stores
// deduplicate naturally.
type Store struct {
	dir string
}

// NewStore creates the assets directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create assets dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root of the asset cache.
func (s *Store) Dir() string {
	return s.dir
}

// Store writes data under its content identifier and returns the asset
// record. The write goes to a temp file first and is made visible with
// an atomic rename, so a partially written asset is never observable.
func (s *Store) Store(data []byte, ext, mediaType string) (types.Asset, error) {
	if ext == "" {
		ext = "bin"
	}
	id := ContentID(data)
	path := filepath.Join(s.dir, id+"."+ext)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return types.Asset{}, fmt.Errorf("write asset temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return types.Asset{}, fmt.Errorf("finalize asset %s: %w", id, err)
	}

	return types.Asset{
		ID:        id,
		MediaType: mediaType,
		LocalPath: path,
		Ext:       ext,
		SHA256:    id,
	}, nil
}

// Resolve finds the cached file for an asset identifier, whatever its
// extension. Returns an empty string when nothing matches.
func (s *Store) Resolve(assetID string) string {
	matches, err := filepath.Glob(filepath.Join(s.dir, assetID+".*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// ContentID derives the stable identifier for a blob: the hex SHA-256
// of its base64 encoding.
func ContentID(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	return SHA256Hex([]byte(encoded))
}

// SHA256Hex returns the hexadecimal SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

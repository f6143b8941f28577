package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/firmsocial/firm/resource"
)

// FileStore is a partition backed by one JSON file per resource. Filenames
// are the MD5 hex of the resource URI, so arbitrary URIs map to safe paths.
type FileStore struct {
	path string
}

// NewFileStore creates the partition directory if needed.
func NewFileStore(storePath, partition string) (*FileStore, error) {
	path := filepath.Join(storePath, partition)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	log.Printf("Store: file partition at %s", path)
	return &FileStore{path: path}, nil
}

// URIHash returns the MD5 hex digest used as the filename for a URI.
func URIHash(uri string) string {
	sum := md5.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func (s *FileStore) filepath(uri string) string {
	return filepath.Join(s.path, URIHash(uri)+".json")
}

func (s *FileStore) Get(ctx context.Context, uri string) (resource.Resource, error) {
	data, err := os.ReadFile(s.filepath(uri))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", uri, err)
	}
	var res resource.Resource
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse resource %s: %w", uri, err)
	}
	return res, nil
}

func (s *FileStore) IsStored(ctx context.Context, uri string) (bool, error) {
	_, err := os.Stat(s.filepath(uri))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Put writes atomically: temp file in the partition directory, then rename.
// Readers never observe a partial document.
func (s *FileStore) Put(ctx context.Context, res resource.Resource) error {
	id, ok := res["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("resource must have an 'id' property")
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resource %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(s.path, "put-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write resource %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.filepath(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store resource %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Remove(ctx context.Context, uri string) error {
	err := os.Remove(s.filepath(uri))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Query scans the partition directory. Fine for the private and small tenant
// partitions this backend is meant for.
func (s *FileStore) Query(ctx context.Context, criteria Criteria) ([]resource.Resource, error) {
	files, err := filepath.Glob(filepath.Join(s.path, "*.json"))
	if err != nil {
		return nil, err
	}
	var matches []resource.Resource
	for _, file := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		data, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Store: skipping unreadable file %s: %v", file, err)
			continue
		}
		var res resource.Resource
		if err := json.Unmarshal(data, &res); err != nil {
			log.Printf("Store: skipping invalid file %s: %v", file, err)
			continue
		}
		if IsMatch(res, criteria) {
			matches = append(matches, res)
		}
	}
	return matches, nil
}

func (s *FileStore) QueryOne(ctx context.Context, criteria Criteria) (resource.Resource, error) {
	return queryOne(ctx, s, criteria)
}

func (s *FileStore) Update(ctx context.Context, uri string, updates resource.Resource) error {
	return update(ctx, s, uri, updates)
}

func (s *FileStore) Upsert(ctx context.Context, criteria Criteria, updates resource.Resource) error {
	return upsert(ctx, s, criteria, updates)
}

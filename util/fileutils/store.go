package fileutils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/tidwall/gjson"
)

const (
	StoreConfig   = "config"
	StoreProfiles = "profiles"
	StoreCache    = "cache"
	StoreAuth     = "auth"
)

// Store is one namespaced JSON document addressed by dotted key paths.
// Writes are last-writer-wins per key; there are no transactions.
type Store struct {
	mu   sync.Mutex
	name string
	path string
}

func OpenStore(dir string, name string) (*Store, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "", "store name is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteFileAtomic(path, []byte("{}"), 0o600); err != nil {
			return nil, err
		}
	}
	return &Store{name: name, path: path}, nil
}

func (s *Store) Name() string {
	return s.name
}

// Get decodes the value at key into out and reports whether the key existed.
func (s *Store) Get(key string, out any) (bool, error) {
	raw, ok, err := s.GetRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, errs.Wrap(err, errs.KindParseError, "", "decode "+s.name+"."+key)
	}
	return true, nil
}

func (s *Store) GetRaw(key string) ([]byte, bool, error) {
	path, err := gjsonPath(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, false, err
	}
	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return nil, false, nil
	}
	return []byte(result.Raw), true, nil
}

// GetString is a convenience for string values; missing keys yield "".
func (s *Store) GetString(key string) (string, error) {
	var value string
	if _, err := s.Get(key, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Keys lists the direct child keys of the object at key; "" lists the root.
func (s *Store) Keys(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(doc)
	if key != "" {
		path, err := gjsonPath(key)
		if err != nil {
			return nil, err
		}
		result = result.Get(path)
	}
	if !result.IsObject() {
		return nil, nil
	}
	var keys []string
	result.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys, nil
}

func (s *Store) Set(key string, value any) error {
	keys, err := splitKey(key)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(err, errs.KindInvalidArgument, "", "encode "+s.name+"."+key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	updated, err := jsonparser.Set(doc, encoded, keys...)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", s.name, key, err)
	}
	return WriteFileAtomic(s.path, updated, 0o600)
}

func (s *Store) Delete(key string) error {
	keys, err := splitKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, jsonparser.Delete(doc, keys...), 0o600)
}

func (s *Store) load() ([]byte, error) {
	// #nosec G304 -- store path is derived from the data directory.
	doc, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("read store %s: %w", s.name, err)
	}
	if len(strings.TrimSpace(string(doc))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(doc) {
		return nil, errs.Newf(errs.KindParseError, "", "store %s is not valid JSON", s.name)
	}
	return doc, nil
}

func splitKey(key string) ([]string, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "", "key is required")
	}
	keys := strings.Split(key, ".")
	for _, k := range keys {
		if k == "" {
			return nil, errs.Newf(errs.KindInvalidArgument, "", "invalid key path %q", key)
		}
	}
	return keys, nil
}

func gjsonPath(key string) (string, error) {
	keys, err := splitKey(key)
	if err != nil {
		return "", err
	}
	escaped := make([]string, len(keys))
	for i, k := range keys {
		var b strings.Builder
		for _, r := range k {
			if strings.ContainsRune(`\*?|#@!:`, r) {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		}
		escaped[i] = b.String()
	}
	return strings.Join(escaped, "."), nil
}

package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"jpg2png/config"
	"jpg2png/logger"
	"jpg2png/models"

	"github.com/cockroachdb/pebble"
)

var ErrNotFound = errors.New("credentials not found")

var db *pebble.DB

// OpenDB opens the Pebble DB for credentials at the specified path
func OpenDB(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open Pebble DB: %v", err)
		return err
	}
	return nil
}

// CloseDB closes the DB
func CloseDB() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

func GetCredentials(key string) (map[string]string, error) {
	if db == nil {
		return nil, fmt.Errorf("credentials store not initialized")
	}
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	defer closer.Close()
	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func StoreCredentials(key string, creds map[string]string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	encodedCreds, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), encodedCreds, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func DeleteCredentials(key string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// ListKeys returns the stored credential keys, sorted.
func ListKeys() ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("credentials store not initialized")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	sort.Strings(keys)
	return keys, iter.Error()
}

// ImportFile stores the flat JSON object in path under key.
func ImportFile(key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	creds := make(map[string]string)
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	if err := StoreCredentials(key, creds); err != nil {
		return fmt.Errorf("store credentials for %s: %w", key, err)
	}
	logger.Infof("Imported %d credential fields for backend '%s'", len(creds), key)
	return nil
}

// Resolve builds the writer job for a backend: stored credentials first,
// then JPG2PNG_<BACKEND>_<FIELD> environment values on top.
func Resolve(backend string) models.WriterJob {
	creds := make(map[string]string)
	if db != nil {
		stored, err := GetCredentials(backend)
		switch {
		case err == nil:
			for k, v := range stored {
				creds[k] = v
			}
		case !errors.Is(err, ErrNotFound):
			logger.Warnf("Failed to read stored credentials for %s: %v", backend, err)
		}
	}
	for k, v := range config.BackendEnv(backend) {
		creds[k] = v
	}
	return models.WriterJob{Type: backend, Credentials: creds}
}

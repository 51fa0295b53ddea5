package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/log"
	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

const (
	listingKeyPrefix = "list:"      // Listing pages visited this run
	postKeyPrefix    = "post:"      // Post block outcomes
	imageKeyPrefix   = "img:"       // Image download outcomes
	journalDBDir     = "journal_db" // Subdirectory name within stateDir for Badger DB files
)

var errNotInitialized = errors.New("journal DB not initialized")

// BadgerStore implements the VisitedStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore opens the journal under stateDir. Without resume any previous
// journal is removed first. Listing visits never survive a reopen: cycle
// detection is scoped to one run.
func NewBadgerStore(ctx context.Context, stateDir string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, journalDBDir)
	if !resume {
		logger.Debugf("Resume flag is false, removing existing journal: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing journal %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if err := store.db.DropPrefix([]byte(listingKeyPrefix)); err != nil {
		store.db.Close()
		return nil, fmt.Errorf("%w: clearing listing visits: %w", utils.ErrDatabase, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
		}
	}

	logger.WithFields(logrus.Fields{"path": dbPath, "resume": resume, "keys": store.keyCount.Load()}).Info("Crawl journal opened")
	return store, nil
}

// countKeys performs a one-time full key scan (used only when resuming).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkPageVisited implements the VisitedStore interface
func (s *BadgerStore) MarkPageVisited(normalizedListingURL string) (bool, error) {
	if s.db == nil {
		return false, errNotInitialized
	}
	added := false
	key := []byte(listingKeyPrefix + normalizedListingURL)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, []byte{}))
			added = errSet == nil
			return errSet
		}
		return errGet
	})
	if err != nil {
		return false, fmt.Errorf("%w: marking listing key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// getJSON decodes the value at key into out. found is false for a missing or empty key.
func (s *BadgerStore) getJSON(key []byte, out any) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return nil
			}
			if errJSON := json.Unmarshal(val, out); errJSON != nil {
				s.log.Warnf("Failed to unmarshal entry for key '%s': %v. Treating as not found.", string(key), errJSON)
				return nil
			}
			found = true
			return nil
		})
	})
	return found, err
}

// putJSON stores v at key
func (s *BadgerStore) putJSON(key []byte, v any) error {
	if s.db == nil {
		return errNotInitialized
	}
	entryBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal entry for key '%s': %w", utils.ErrParsing, string(key), err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		if _, errGet := txn.Get(key); errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
		return fmt.Errorf("%w: failed setting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// CheckPostStatus implements the VisitedStore interface
func (s *BadgerStore) CheckPostStatus(postKey string) (models.PostStatus, *models.PostDBEntry, error) {
	var entry models.PostDBEntry
	found, err := s.getJSON([]byte(postKeyPrefix+postKey), &entry)
	if err != nil {
		return models.PostStatusDBError, nil, err
	}
	if !found {
		return models.PostStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

// UpdatePostStatus implements the VisitedStore interface
func (s *BadgerStore) UpdatePostStatus(postKey string, entry *models.PostDBEntry) error {
	if err := s.putJSON([]byte(postKeyPrefix+postKey), entry); err != nil {
		return err
	}
	s.log.Debugf("Updated post status for '%s' to '%s'", postKey, entry.Status)
	return nil
}

// CheckImageStatus implements the VisitedStore interface
func (s *BadgerStore) CheckImageStatus(normalizedImgURL string) (models.ImageStatus, *models.ImageDBEntry, error) {
	var entry models.ImageDBEntry
	found, err := s.getJSON([]byte(imageKeyPrefix+normalizedImgURL), &entry)
	if err != nil {
		return models.ImageStatusDBError, nil, err
	}
	if !found {
		return models.ImageStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

// UpdateImageStatus implements the VisitedStore interface
func (s *BadgerStore) UpdateImageStatus(normalizedImgURL string, entry *models.ImageDBEntry) error {
	return s.putJSON([]byte(imageKeyPrefix+normalizedImgURL), entry)
}

// GetVisitedCount implements the VisitedStore interface.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// IncompletePosts implements the VisitedStore interface
func (s *BadgerStore) IncompletePosts(ctx context.Context) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)
	scanErrors := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(postKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			postKey := string(item.KeyCopy(nil)[len(postKeyPrefix):])

			errValue := item.Value(func(val []byte) error {
				var entry models.PostDBEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					scanErrors++
					return nil
				}
				if entry.Status == models.PostStatusPending || entry.Status == models.PostStatusFailure {
					u := PostURL(postKey)
					if !seen[u] {
						seen[u] = true
						urls = append(urls, u)
					}
				}
				return nil
			})
			if errValue != nil {
				scanErrors++
			}
		}
		return nil
	})
	if scanErrors > 0 {
		s.log.Warnf("Skipped %d unreadable post entries while scanning for incomplete posts", scanErrors)
	}
	if err != nil {
		return urls, err
	}
	return urls, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Rewrite while at least half of a value log file is reclaimable
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// WriteVisitedLog implements the VisitedStore interface.
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	writtenCount := 0
	prefixes := [][]byte{[]byte(listingKeyPrefix), []byte(postKeyPrefix), []byte(imageKeyPrefix)}

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := s.ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			for _, p := range prefixes {
				if !bytes.HasPrefix(key, p) {
					continue
				}
				if _, err := writer.WriteString(string(key[len(p):]) + "\n"); err != nil && writeErr == nil {
					writeErr = err
				}
				writtenCount++
				break
			}
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if iterErr != nil {
		return iterErr
	}
	if writeErr != nil {
		return fmt.Errorf("%w: writing visited log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Wrote %d URLs to visited log: %s", writtenCount, filePath)
	return nil
}

// Close implements the VisitedStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing journal DB: %v", err)
			return err
		}
		s.log.Debug("Journal DB closed.")
	}
	return nil
}

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
	badgerv3 "github.com/dgraph-io/badger/v3"
)

// Key prefixes for different data types
const (
	prefixCheckpoint = "checkpoint:%d"
	prefixSignature  = "sig:%s:"
)

// BadgerEthloggerStore implements the EthloggerStore interface using BadgerDB
type BadgerEthloggerStore struct {
	db       *badgerv3.DB
	mu       sync.RWMutex
	closed   bool
	closeCh  chan struct{}
	gcTicker *time.Ticker
}

// NewBadgerEthloggerStore creates a new BadgerDB-backed store
func NewBadgerEthloggerStore(cfg *ethloggerConfig.BadgerConfig) (*BadgerEthloggerStore, error) {
	if cfg == nil {
		return nil, errors.New("badger config is nil")
	}

	opts := badgerv3.DefaultOptions(cfg.Dir)
	opts.Logger = nil // Disable BadgerDB's default logging

	if cfg.InMemory {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = cfg.NumVersionsToKeep
	}

	db, err := badgerv3.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &BadgerEthloggerStore{
		db:      db,
		closeCh: make(chan struct{}),
	}

	s.gcTicker = time.NewTicker(5 * time.Minute)
	go s.runGC()

	return s, nil
}

// runGC runs periodic garbage collection
func (s *BadgerEthloggerStore) runGC() {
	for {
		select {
		case <-s.gcTicker.C:
			s.mu.RLock()
			if s.closed {
				s.mu.RUnlock()
				return
			}
			s.mu.RUnlock()

			_ = s.db.RunValueLogGC(0.5)
		case <-s.closeCh:
			return
		}
	}
}

func (s *BadgerEthloggerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

func signatureKey(kind abi.Kind, hash string) ([]byte, error) {
	if kind != abi.KindFunction && kind != abi.KindEvent {
		return nil, fmt.Errorf("%w: %s", storage.ErrInvalidSignatureKind, kind)
	}
	return []byte(fmt.Sprintf(prefixSignature, kind) + abi.NormalizeHash(hash)), nil
}

// SaveCheckpoint stores the checkpoint of a chain
func (s *BadgerEthloggerStore) SaveCheckpoint(ctx context.Context, chainId config.ChainId, checkpoint *storage.BlockCheckpoint) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if checkpoint == nil {
		return errors.New("checkpoint is nil")
	}

	cpCopy := *checkpoint
	cpCopy.ChainId = chainId
	value, err := json.Marshal(&cpCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := fmt.Sprintf(prefixCheckpoint, chainId)
	err = s.db.Update(func(txn *badgerv3.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint of a chain
func (s *BadgerEthloggerStore) GetCheckpoint(ctx context.Context, chainId config.ChainId) (*storage.BlockCheckpoint, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var cp storage.BlockCheckpoint
	key := fmt.Sprintf(prefixCheckpoint, chainId)

	err := s.db.View(func(txn *badgerv3.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badgerv3.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveSignatures stores the signatures sharing a selector or topic
func (s *BadgerEthloggerStore) SaveSignatures(ctx context.Context, kind abi.Kind, hash string, signatures []string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if hash == "" {
		return errors.New("signature hash cannot be empty")
	}
	key, err := signatureKey(kind, hash)
	if err != nil {
		return err
	}
	value, err := json.Marshal(signatures)
	if err != nil {
		return fmt.Errorf("failed to marshal signatures: %w", err)
	}

	err = s.db.Update(func(txn *badgerv3.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to save signatures: %w", err)
	}
	return nil
}

// GetSignatures retrieves the signatures of a selector or topic
func (s *BadgerEthloggerStore) GetSignatures(ctx context.Context, kind abi.Kind, hash string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	key, err := signatureKey(kind, hash)
	if err != nil {
		return nil, err
	}

	var sigs []string
	err = s.db.View(func(txn *badgerv3.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badgerv3.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sigs)
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}
	return sigs, nil
}

// CountSignatures counts the stored hashes of a kind
func (s *BadgerEthloggerStore) CountSignatures(ctx context.Context, kind abi.Kind) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if kind != abi.KindFunction && kind != abi.KindEvent {
		return 0, fmt.Errorf("%w: %s", storage.ErrInvalidSignatureKind, kind)
	}

	count := 0
	err := s.db.View(func(txn *badgerv3.Txn) error {
		opts := badgerv3.DefaultIteratorOptions
		opts.Prefix = []byte(fmt.Sprintf(prefixSignature, kind))
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count signatures: %w", err)
	}
	return count, nil
}

// Close shuts down the store
func (s *BadgerEthloggerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.closeCh)
	s.gcTicker.Stop()

	return s.db.Close()
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
)

// InMemoryEthloggerStore implements EthloggerStore interface with in-memory storage
type InMemoryEthloggerStore struct {
	mu          sync.RWMutex
	closed      bool
	checkpoints map[config.ChainId]*storage.BlockCheckpoint
	signatures  map[abi.Kind]map[string][]string
}

// NewInMemoryEthloggerStore creates a new in-memory store
func NewInMemoryEthloggerStore() *InMemoryEthloggerStore {
	return &InMemoryEthloggerStore{
		checkpoints: make(map[config.ChainId]*storage.BlockCheckpoint),
		signatures: map[abi.Kind]map[string][]string{
			abi.KindFunction: make(map[string][]string),
			abi.KindEvent:    make(map[string][]string),
		},
	}
}

func (s *InMemoryEthloggerStore) SaveCheckpoint(ctx context.Context, chainId config.ChainId, checkpoint *storage.BlockCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	cpCopy := *checkpoint
	cpCopy.ChainId = chainId
	s.checkpoints[chainId] = &cpCopy
	return nil
}

func (s *InMemoryEthloggerStore) GetCheckpoint(ctx context.Context, chainId config.ChainId) (*storage.BlockCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	cp, ok := s.checkpoints[chainId]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cpCopy := *cp
	return &cpCopy, nil
}

func (s *InMemoryEthloggerStore) SaveSignatures(ctx context.Context, kind abi.Kind, hash string, signatures []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	byHash, ok := s.signatures[kind]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInvalidSignatureKind, kind)
	}
	if hash == "" {
		return fmt.Errorf("signature hash cannot be empty")
	}
	byHash[abi.NormalizeHash(hash)] = append([]string(nil), signatures...)
	return nil
}

func (s *InMemoryEthloggerStore) GetSignatures(ctx context.Context, kind abi.Kind, hash string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	byHash, ok := s.signatures[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrInvalidSignatureKind, kind)
	}
	sigs, ok := byHash[abi.NormalizeHash(hash)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]string(nil), sigs...), nil
}

func (s *InMemoryEthloggerStore) CountSignatures(ctx context.Context, kind abi.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, storage.ErrStoreClosed
	}
	byHash, ok := s.signatures[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrInvalidSignatureKind, kind)
	}
	return len(byHash), nil
}

// Close marks the store as closed
func (s *InMemoryEthloggerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

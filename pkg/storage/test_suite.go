package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSuite defines a test suite that all storage implementations must pass
type TestSuite struct {
	NewStore func() (EthloggerStore, error)
}

// Run executes all storage interface compliance tests
func (s *TestSuite) Run(t *testing.T) {
	t.Run("Checkpoints", s.testCheckpoints)
	t.Run("Signatures", s.testSignatures)
	t.Run("Lifecycle", s.testLifecycle)
	t.Run("ConcurrentAccess", s.testConcurrentAccess)
}

func (s *TestSuite) testCheckpoints(t *testing.T) {
	store, err := s.NewStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.GetCheckpoint(ctx, config.ChainId_EthereumMainnet)
	assert.ErrorIs(t, err, ErrNotFound)

	cp := &BlockCheckpoint{
		BlockNumber: 19_000_000,
		BlockHash:   "0xabc",
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveCheckpoint(ctx, config.ChainId_EthereumMainnet, cp))

	retrieved, err := store.GetCheckpoint(ctx, config.ChainId_EthereumMainnet)
	require.NoError(t, err)
	assert.Equal(t, config.ChainId_EthereumMainnet, retrieved.ChainId)
	assert.Equal(t, cp.BlockNumber, retrieved.BlockNumber)
	assert.Equal(t, cp.BlockHash, retrieved.BlockHash)
	assert.True(t, cp.UpdatedAt.Equal(retrieved.UpdatedAt))

	// checkpoints are kept per chain
	_, err = store.GetCheckpoint(ctx, config.ChainId_EthereumHolesky)
	assert.ErrorIs(t, err, ErrNotFound)

	cp.BlockNumber++
	require.NoError(t, store.SaveCheckpoint(ctx, config.ChainId_EthereumMainnet, cp))
	retrieved, err = store.GetCheckpoint(ctx, config.ChainId_EthereumMainnet)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_000_001), retrieved.BlockNumber)

	assert.Error(t, store.SaveCheckpoint(ctx, config.ChainId_EthereumMainnet, nil))
}

func (s *TestSuite) testSignatures(t *testing.T) {
	store, err := s.NewStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.GetSignatures(ctx, abi.KindFunction, "a9059cbb")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveSignatures(ctx, abi.KindFunction, "0xA9059CBB", []string{"transfer(address,uint256)"}))
	require.NoError(t, store.SaveSignatures(ctx, abi.KindFunction, "12345678", []string{"b()", "a()"}))
	require.NoError(t, store.SaveSignatures(ctx, abi.KindEvent, "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", []string{"Transfer(address,address,uint256)"}))

	sigs, err := store.GetSignatures(ctx, abi.KindFunction, "a9059cbb")
	require.NoError(t, err)
	assert.Equal(t, []string{"transfer(address,uint256)"}, sigs)

	sigs, err = store.GetSignatures(ctx, abi.KindFunction, "0x12345678")
	require.NoError(t, err)
	assert.Equal(t, []string{"b()", "a()"}, sigs)

	// kinds do not share a namespace
	_, err = store.GetSignatures(ctx, abi.KindEvent, "a9059cbb")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := store.CountSignatures(ctx, abi.KindFunction)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = store.CountSignatures(ctx, abi.KindEvent)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = store.SaveSignatures(ctx, abi.Kind("constructor"), "aa", []string{"x()"})
	assert.ErrorIs(t, err, ErrInvalidSignatureKind)
}

func (s *TestSuite) testLifecycle(t *testing.T) {
	store, err := s.NewStore()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Close())
	// closing twice is a no-op
	require.NoError(t, store.Close())

	_, err = store.GetCheckpoint(ctx, config.ChainId_EthereumMainnet)
	assert.ErrorIs(t, err, ErrStoreClosed)
	err = store.SaveCheckpoint(ctx, config.ChainId_EthereumMainnet, &BlockCheckpoint{})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.GetSignatures(ctx, abi.KindFunction, "a9059cbb")
	assert.ErrorIs(t, err, ErrStoreClosed)
	err = store.SaveSignatures(ctx, abi.KindFunction, "a9059cbb", nil)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func (s *TestSuite) testConcurrentAccess(t *testing.T) {
	store, err := s.NewStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := fmt.Sprintf("%08x", i)
			assert.NoError(t, store.SaveSignatures(ctx, abi.KindFunction, hash, []string{fmt.Sprintf("f%d()", i)}))
			assert.NoError(t, store.SaveCheckpoint(ctx, config.ChainId(i+1), &BlockCheckpoint{BlockNumber: uint64(i)}))
			_, err := store.GetSignatures(ctx, abi.KindFunction, hash)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := store.CountSignatures(ctx, abi.KindFunction)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

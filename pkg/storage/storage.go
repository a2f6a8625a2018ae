package storage

import (
	"context"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
)

// EthloggerStore defines the interface for ingestion state persistence
type EthloggerStore interface {
	// Block checkpoints, one per chain
	SaveCheckpoint(ctx context.Context, chainId config.ChainId, checkpoint *BlockCheckpoint) error
	GetCheckpoint(ctx context.Context, chainId config.ChainId) (*BlockCheckpoint, error)

	// Public signatures keyed by selector or topic hash, imported from signature tables
	SaveSignatures(ctx context.Context, kind abi.Kind, hash string, signatures []string) error
	GetSignatures(ctx context.Context, kind abi.Kind, hash string) ([]string, error)
	CountSignatures(ctx context.Context, kind abi.Kind) (int, error)

	// Lifecycle management
	Close() error
}

// BlockCheckpoint is the last block fully processed for a chain
type BlockCheckpoint struct {
	ChainId     config.ChainId `json:"chainId"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   string         `json:"blockHash"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

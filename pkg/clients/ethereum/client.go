package ethereum

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultMaxBatchSize = 100

//go:generate mockgen -destination=../../../mocks/mock_client.go -package=mocks . Client

// Client is the subset of the JSON-RPC API the ingestion pipeline reads from.
type Client interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
	GetBlockByNumber(ctx context.Context, blockNumber uint64) (*EthereumBlock, error)
	GetTransactionReceipts(ctx context.Context, txHashes []string) ([]*EthereumTransactionReceipt, error)
	GetCode(ctx context.Context, address string) (string, error)
	ChainId(ctx context.Context) (uint64, error)
	ClientVersion(ctx context.Context) (string, error)
	Close()
}

type EthereumClientConfig struct {
	BaseUrl string
	// MaxBatchSize bounds the number of requests sent in one JSON-RPC batch
	MaxBatchSize int
}

type EthereumClient struct {
	config *EthereumClientConfig
	logger *zap.Logger

	mu        sync.Mutex
	rpcClient *rpc.Client
}

func NewEthereumClient(cfg *EthereumClientConfig, logger *zap.Logger) *EthereumClient {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	return &EthereumClient{
		config: cfg,
		logger: logger,
	}
}

// client dials on first use so constructing the client never blocks.
func (c *EthereumClient) client(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		return c.rpcClient, nil
	}
	rc, err := rpc.DialContext(ctx, c.config.BaseUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", c.config.BaseUrl)
	}
	c.rpcClient = rc
	return rc, nil
}

func (c *EthereumClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	rc, err := c.client(ctx)
	if err != nil {
		return err
	}
	if err := rc.CallContext(ctx, result, method, args...); err != nil {
		return errors.Wrapf(err, "%s failed", method)
	}
	return nil
}

func (c *EthereumClient) GetLatestBlock(ctx context.Context) (uint64, error) {
	var blockNumber EthereumQuantity
	if err := c.call(ctx, &blockNumber, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return blockNumber.Value(), nil
}

// GetBlockByNumber returns a block with its full transactions.
func (c *EthereumClient) GetBlockByNumber(ctx context.Context, blockNumber uint64) (*EthereumBlock, error) {
	var block *EthereumBlock
	if err := c.call(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(blockNumber), true); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("block %d not found", blockNumber)
	}
	return block, nil
}

// GetTransactionReceipts fetches receipts in JSON-RPC batches, preserving the order of txHashes.
func (c *EthereumClient) GetTransactionReceipts(ctx context.Context, txHashes []string) ([]*EthereumTransactionReceipt, error) {
	receipts := make([]*EthereumTransactionReceipt, len(txHashes))
	if len(txHashes) == 0 {
		return receipts, nil
	}
	rc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(txHashes); start += c.config.MaxBatchSize {
		end := min(start+c.config.MaxBatchSize, len(txHashes))
		batch := make([]rpc.BatchElem, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, rpc.BatchElem{
				Method: "eth_getTransactionReceipt",
				Args:   []interface{}{txHashes[i]},
				Result: &receipts[i],
			})
		}
		if err := rc.BatchCallContext(ctx, batch); err != nil {
			return nil, errors.Wrap(err, "eth_getTransactionReceipt batch failed")
		}
		for i, elem := range batch {
			if elem.Error != nil {
				return nil, errors.Wrapf(elem.Error, "failed to get receipt of %s", txHashes[start+i])
			}
			if receipts[start+i] == nil {
				return nil, fmt.Errorf("receipt of %s not found", txHashes[start+i])
			}
		}
		c.logger.Sugar().Debugw("Fetched transaction receipts", zap.Int("count", len(batch)))
	}
	return receipts, nil
}

// GetCode returns the deployed bytecode at the latest block, "0x" for accounts without code.
func (c *EthereumClient) GetCode(ctx context.Context, address string) (string, error) {
	var code EthereumHexString
	if err := c.call(ctx, &code, "eth_getCode", strings.ToLower(address), "latest"); err != nil {
		return "", err
	}
	return code.Value(), nil
}

func (c *EthereumClient) ChainId(ctx context.Context) (uint64, error) {
	var chainId EthereumQuantity
	if err := c.call(ctx, &chainId, "eth_chainId"); err != nil {
		return 0, err
	}
	return chainId.Value(), nil
}

func (c *EthereumClient) ClientVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.call(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

func (c *EthereumClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

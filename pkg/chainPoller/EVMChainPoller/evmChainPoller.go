package EVMChainPoller

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/clients/ethereum"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/output"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type EVMChainPollerConfig struct {
	ChainId          config.ChainId
	PollingInterval  time.Duration
	StartBlock       uint64
	MaxBlocksPerPoll int
}

type RecordParser interface {
	ParseTransaction(ctx context.Context, tx *ethereum.EthereumTransaction, receipt *ethereum.EthereumTransactionReceipt, block *ethereum.EthereumBlock) (*output.Record, error)
	ParseLog(ctx context.Context, lg *ethereum.EthereumEventLog, block *ethereum.EthereumBlock) (*output.Record, error)
}

type BlockRecorder interface {
	RecordBlock(blockNumber uint64, duration time.Duration)
	RecordWrite(recordType string)
}

type EVMChainPoller struct {
	ethClient ethereum.Client
	store     storage.EthloggerStore
	logParser RecordParser
	output    output.Output
	recorder  BlockRecorder
	config    *EVMChainPollerConfig
	logger    *zap.Logger

	nextBlock     uint64
	lastBlockHash string
	done          chan struct{}
}

func NewEVMChainPollerDefaultConfig(chainId config.ChainId) *EVMChainPollerConfig {
	return &EVMChainPollerConfig{
		ChainId:          chainId,
		PollingInterval:  2 * time.Second,
		MaxBlocksPerPoll: 25,
	}
}

// NewEVMChainPoller creates a poller. recorder is optional.
func NewEVMChainPoller(
	ethClient ethereum.Client,
	store storage.EthloggerStore,
	logParser RecordParser,
	out output.Output,
	recorder BlockRecorder,
	config *EVMChainPollerConfig,
	logger *zap.Logger,
) *EVMChainPoller {
	if config.MaxBlocksPerPoll <= 0 {
		config.MaxBlocksPerPoll = 1
	}
	return &EVMChainPoller{
		ethClient: ethClient,
		store:     store,
		logParser: logParser,
		output:    out,
		recorder:  recorder,
		config:    config,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start resumes from the stored checkpoint and polls in the background until ctx is cancelled.
func (ecp *EVMChainPoller) Start(ctx context.Context) error {
	if err := ecp.resume(ctx); err != nil {
		return err
	}
	ecp.logger.Sugar().Infow("Starting Ethereum Chain Poller",
		"chainId", ecp.config.ChainId,
		"nextBlock", ecp.nextBlock,
		"pollingInterval", ecp.config.PollingInterval,
		"maxBlocksPerPoll", ecp.config.MaxBlocksPerPoll,
	)
	go ecp.pollForBlocks(ctx)
	return nil
}

// Done is closed once the poll loop has exited.
func (ecp *EVMChainPoller) Done() <-chan struct{} {
	return ecp.done
}

func (ecp *EVMChainPoller) resume(ctx context.Context) error {
	checkpoint, err := ecp.store.GetCheckpoint(ctx, ecp.config.ChainId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ecp.nextBlock = ecp.config.StartBlock
			ecp.logger.Sugar().Infow("No checkpoint found, starting from the configured block",
				zap.Uint64("startBlock", ecp.config.StartBlock),
			)
			return nil
		}
		return errors.Wrap(err, "failed to load checkpoint")
	}
	ecp.nextBlock = checkpoint.BlockNumber + 1
	ecp.lastBlockHash = checkpoint.BlockHash
	ecp.logger.Sugar().Infow("Resuming from checkpoint",
		zap.Uint64("blockNumber", checkpoint.BlockNumber),
		zap.String("blockHash", checkpoint.BlockHash),
	)
	return nil
}

func (ecp *EVMChainPoller) pollForBlocks(ctx context.Context) {
	defer close(ecp.done)
	ticker := time.NewTicker(ecp.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ecp.logger.Sugar().Infow("Ethereum Chain Poller context cancelled, exiting poll loop")
			return
		case <-ticker.C:
			// failed blocks are retried on the next tick; the checkpoint only moves on success
			if _, err := ecp.ProcessNextBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				ecp.logger.Sugar().Errorw("Error processing Ethereum blocks",
					zap.Uint64("nextBlock", ecp.nextBlock),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessNextBatch processes up to MaxBlocksPerPoll blocks between the next unprocessed block and the
// chain head, returning the number of blocks processed.
func (ecp *EVMChainPoller) ProcessNextBatch(ctx context.Context) (int, error) {
	latest, err := ecp.ethClient.GetLatestBlock(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get latest block")
	}
	if ecp.nextBlock > latest {
		ecp.logger.Sugar().Debugw("No new blocks",
			zap.Uint64("nextBlock", ecp.nextBlock),
			zap.Uint64("latestBlock", latest),
		)
		return 0, nil
	}

	end := min(latest, ecp.nextBlock+uint64(ecp.config.MaxBlocksPerPoll)-1)
	processed := 0
	for ecp.nextBlock <= end {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := ecp.processBlock(ctx, ecp.nextBlock); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (ecp *EVMChainPoller) processBlock(ctx context.Context, blockNumber uint64) error {
	start := time.Now()
	block, err := ecp.ethClient.GetBlockByNumber(ctx, blockNumber)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch block %d", blockNumber)
	}
	block.ChainId = ecp.config.ChainId

	if ecp.lastBlockHash != "" && block.ParentHash.Value() != "" && block.ParentHash.Value() != ecp.lastBlockHash {
		ecp.logger.Sugar().Warnw("Parent hash does not match the last processed block, chain reorganized",
			zap.Uint64("blockNumber", blockNumber),
			zap.String("parentHash", block.ParentHash.Value()),
			zap.String("lastBlockHash", ecp.lastBlockHash),
		)
	}

	txHashes := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		txHashes[i] = tx.Hash.Value()
	}
	receipts, err := ecp.ethClient.GetTransactionReceipts(ctx, txHashes)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch receipts of block %d", blockNumber)
	}
	if len(receipts) != len(block.Transactions) {
		return fmt.Errorf("got %d receipts for %d transactions of block %d", len(receipts), len(block.Transactions), blockNumber)
	}

	logCount := 0
	for i, tx := range block.Transactions {
		record, err := ecp.logParser.ParseTransaction(ctx, tx, receipts[i], block)
		if err != nil {
			return errors.Wrapf(err, "failed to parse transaction %s", tx.Hash.Value())
		}
		if err := ecp.write(ctx, record); err != nil {
			return err
		}
		for _, lg := range receipts[i].Logs {
			record, err := ecp.logParser.ParseLog(ctx, lg, block)
			if err != nil {
				return errors.Wrapf(err, "failed to parse log %d of transaction %s", lg.LogIndex.Value(), tx.Hash.Value())
			}
			if err := ecp.write(ctx, record); err != nil {
				return err
			}
			logCount++
		}
	}
	if err := ecp.output.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush output")
	}

	if err := ecp.store.SaveCheckpoint(ctx, ecp.config.ChainId, &storage.BlockCheckpoint{
		ChainId:     ecp.config.ChainId,
		BlockNumber: blockNumber,
		BlockHash:   block.Hash.Value(),
		UpdatedAt:   time.Now(),
	}); err != nil {
		return errors.Wrapf(err, "failed to save checkpoint of block %d", blockNumber)
	}
	ecp.nextBlock = blockNumber + 1
	ecp.lastBlockHash = block.Hash.Value()

	duration := time.Since(start)
	if ecp.recorder != nil {
		ecp.recorder.RecordBlock(blockNumber, duration)
	}
	ecp.logger.Sugar().Infow("Processed Ethereum block",
		zap.Uint64("blockNumber", blockNumber),
		zap.String("blockHash", block.Hash.Value()),
		zap.Int("transactionCount", len(block.Transactions)),
		zap.Int("logCount", logCount),
		zap.Duration("duration", duration),
	)
	return nil
}

func (ecp *EVMChainPoller) write(ctx context.Context, record *output.Record) error {
	if err := ecp.output.Write(ctx, record); err != nil {
		return err
	}
	if ecp.recorder != nil {
		ecp.recorder.RecordWrite(string(record.Type))
	}
	return nil
}

package transactionLogParser

import (
	"context"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/clients/ethereum"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/contractInfo"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/metrics"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/output"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Decoder interface {
	DecodeFunctionCall(callData string, fingerprintHint string) (*abi.DecodedCall, error)
	DecodeLogEvent(log *abi.RawLog, fingerprintHint string) (*abi.DecodedEvent, error)
	LookupSignatureName(ctx context.Context, hash string) (string, error)
}

type ContractResolver interface {
	Resolve(ctx context.Context, address string) (*contractInfo.ContractInfo, error)
}

type DecodeRecorder interface {
	RecordDecode(kind abi.Kind, outcome metrics.DecodeOutcome)
}

// TransactionLogParser turns raw transactions and logs into output records, decoding call data and
// log payloads with the loaded interface documents.
type TransactionLogParser struct {
	decoder  Decoder
	resolver ContractResolver
	recorder DecodeRecorder
	logger   *zap.Logger
}

// NewTransactionLogParser creates a parser. resolver and recorder are optional.
func NewTransactionLogParser(decoder Decoder, resolver ContractResolver, recorder DecodeRecorder, logger *zap.Logger) *TransactionLogParser {
	return &TransactionLogParser{
		decoder:  decoder,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// ParseTransaction builds the record of a transaction. Decode failures are logged and attached to
// the record; only failures to resolve the called contract are returned.
func (tlp *TransactionLogParser) ParseTransaction(
	ctx context.Context,
	tx *ethereum.EthereumTransaction,
	receipt *ethereum.EthereumTransactionReceipt,
	block *ethereum.EthereumBlock,
) (*output.Record, error) {
	record := &output.Record{
		Type:             output.RecordType_Transaction,
		ChainId:          block.ChainId,
		BlockNumber:      block.Number.Value(),
		BlockHash:        block.Hash.Value(),
		Timestamp:        block.Timestamp.Value(),
		TransactionHash:  tx.Hash.Value(),
		TransactionIndex: tx.TransactionIndex.Value(),
		From:             tx.From.Lower(),
		To:               tx.To.Lower(),
		Input:            tx.Input.Value(),
	}
	if tx.Value != nil {
		record.Value = tx.Value.ToInt().String()
	}
	if receipt != nil {
		status := receipt.Status.Value()
		gasUsed := receipt.GasUsed.Value()
		record.Status = &status
		record.GasUsed = &gasUsed
		record.ContractAddress = receipt.ContractAddress.Lower()
	}

	// contract creations and plain value transfers carry no call
	if record.To == "" || len(tx.Input.Value()) < 2+abi.FunctionSelectorLength*2 {
		return record, nil
	}

	info, err := tlp.resolve(ctx, record.To)
	if err != nil {
		return nil, err
	}
	if info != nil {
		record.ContractName = info.ContractName
		record.Fingerprint = info.Fingerprint
	}

	selector := tx.Input.Value()[2 : 2+abi.FunctionSelectorLength*2]
	signature, err := tlp.decoder.LookupSignatureName(ctx, selector)
	if err != nil {
		tlp.logger.Sugar().Warnw("Failed to look up method signature",
			zap.String("transactionHash", record.TransactionHash),
			zap.String("selector", selector),
			zap.Error(err),
		)
	}
	record.MethodSignature = signature

	call, err := tlp.decoder.DecodeFunctionCall(tx.Input.Value(), info.FingerprintHint())
	if err != nil {
		err = errors.Wrapf(err, "failed to decode call of transaction %s", record.TransactionHash)
		tlp.logger.Sugar().Warnw("Failed to decode transaction input",
			zap.String("transactionHash", record.TransactionHash),
			zap.String("to", record.To),
			zap.Error(err),
		)
		record.DecodeError = err.Error()
		tlp.recordDecode(abi.KindFunction, metrics.DecodeOutcome_Failed)
		return record, nil
	}
	if call == nil {
		tlp.recordDecode(abi.KindFunction, metrics.DecodeOutcome_Unknown)
		return record, nil
	}
	record.Call = call
	tlp.recordDecode(abi.KindFunction, metrics.DecodeOutcome_Decoded)
	return record, nil
}

// ParseLog builds the record of a log entry. Decode failures are logged and attached to the record.
func (tlp *TransactionLogParser) ParseLog(
	ctx context.Context,
	lg *ethereum.EthereumEventLog,
	block *ethereum.EthereumBlock,
) (*output.Record, error) {
	logIndex := lg.LogIndex.Value()
	record := &output.Record{
		Type:             output.RecordType_Event,
		ChainId:          block.ChainId,
		BlockNumber:      block.Number.Value(),
		BlockHash:        block.Hash.Value(),
		Timestamp:        block.Timestamp.Value(),
		TransactionHash:  lg.TransactionHash.Value(),
		TransactionIndex: lg.TransactionIndex.Value(),
		LogIndex:         &logIndex,
		Address:          lg.Address.Lower(),
		Data:             lg.Data.Value(),
		Topics:           lg.TopicValues(),
		Removed:          lg.Removed,
	}

	// anonymous events without topics cannot be matched to a signature
	if len(lg.Topics) == 0 {
		return record, nil
	}

	info, err := tlp.resolve(ctx, record.Address)
	if err != nil {
		return nil, err
	}
	if info != nil {
		record.ContractName = info.ContractName
		record.Fingerprint = info.Fingerprint
	}

	event, err := tlp.decoder.DecodeLogEvent(&abi.RawLog{Data: record.Data, Topics: record.Topics}, info.FingerprintHint())
	if err != nil {
		err = errors.Wrapf(err, "failed to decode log %d of transaction %s", logIndex, record.TransactionHash)
		tlp.logger.Sugar().Warnw("Failed to decode log",
			zap.String("transactionHash", record.TransactionHash),
			zap.Uint64("logIndex", logIndex),
			zap.String("address", record.Address),
			zap.Error(err),
		)
		record.DecodeError = err.Error()
		tlp.recordDecode(abi.KindEvent, metrics.DecodeOutcome_Failed)
		return record, nil
	}
	if event == nil {
		tlp.logger.Sugar().Debugw("No event signature found for log",
			zap.String("transactionHash", record.TransactionHash),
			zap.Uint64("logIndex", logIndex),
			zap.String("topic", record.Topics[0]),
		)
		tlp.recordDecode(abi.KindEvent, metrics.DecodeOutcome_Unknown)
		return record, nil
	}
	record.Event = event
	tlp.recordDecode(abi.KindEvent, metrics.DecodeOutcome_Decoded)
	return record, nil
}

func (tlp *TransactionLogParser) resolve(ctx context.Context, address string) (*contractInfo.ContractInfo, error) {
	if tlp.resolver == nil {
		return nil, nil
	}
	info, err := tlp.resolver.Resolve(ctx, address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve contract %s", address)
	}
	return info, nil
}

func (tlp *TransactionLogParser) recordDecode(kind abi.Kind, outcome metrics.DecodeOutcome) {
	if tlp.recorder != nil {
		tlp.recorder.RecordDecode(kind, outcome)
	}
}

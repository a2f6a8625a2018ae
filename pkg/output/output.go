// Package output writes ingestion records as newline-delimited JSON.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrOutputClosed = errors.New("output is closed")

type RecordType string

const (
	RecordType_Transaction RecordType = "transaction"
	RecordType_Event       RecordType = "event"
)

type Record struct {
	Type             RecordType     `json:"type"`
	ChainId          config.ChainId `json:"chainId"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockHash        string         `json:"blockHash"`
	Timestamp        uint64         `json:"timestamp,omitempty"`
	TransactionHash  string         `json:"transactionHash"`
	TransactionIndex uint64         `json:"transactionIndex"`

	// transaction fields
	From            string           `json:"from,omitempty"`
	To              string           `json:"to,omitempty"`
	Value           string           `json:"value,omitempty"`
	Input           string           `json:"input,omitempty"`
	Status          *uint64          `json:"status,omitempty"`
	GasUsed         *uint64          `json:"gasUsed,omitempty"`
	ContractAddress string           `json:"contractAddress,omitempty"`
	MethodSignature string           `json:"methodSignature,omitempty"`
	Call            *abi.DecodedCall `json:"call,omitempty"`

	// event fields
	LogIndex *uint64           `json:"logIndex,omitempty"`
	Address  string            `json:"address,omitempty"`
	Data     string            `json:"data,omitempty"`
	Topics   []string          `json:"topics,omitempty"`
	Removed  bool              `json:"removed,omitempty"`
	Event    *abi.DecodedEvent `json:"event,omitempty"`

	ContractName string `json:"contractName,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	DecodeError  string `json:"decodeError,omitempty"`
}

type Output interface {
	Write(ctx context.Context, record *Record) error
	Flush() error
	Close() error
}

// JsonOutput encodes one record per line. Writes are buffered until Flush or Close.
type JsonOutput struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	encoder *json.Encoder
	closer  io.Closer
	closed  bool
	logger  *zap.Logger
}

func NewJsonOutput(w io.Writer, logger *zap.Logger) *JsonOutput {
	buf := bufio.NewWriter(w)
	o := &JsonOutput{
		buf:     buf,
		encoder: json.NewEncoder(buf),
		logger:  logger,
	}
	if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
		o.closer = c
	}
	return o
}

// NewOutput returns a stdout output, or a size-rotated file output when a file is configured.
func NewOutput(cfg *ethloggerConfig.OutputConfig, logger *zap.Logger) Output {
	if cfg == nil || cfg.File == "" {
		logger.Sugar().Infow("Writing records to stdout")
		return NewJsonOutput(os.Stdout, logger)
	}
	logger.Sugar().Infow("Writing records to file",
		zap.String("file", cfg.File),
		zap.Int("maxSizeMb", cfg.MaxSizeMb),
		zap.Int("maxBackups", cfg.MaxBackups),
	)
	return NewJsonOutput(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMb,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}, logger)
}

func (o *JsonOutput) Write(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutputClosed
	}
	if err := o.encoder.Encode(record); err != nil {
		return errors.Wrapf(err, "failed to write %s record of %s", record.Type, record.TransactionHash)
	}
	return nil
}

func (o *JsonOutput) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	return o.buf.Flush()
}

func (o *JsonOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.buf.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush output")
	}
	if o.closer != nil {
		return o.closer.Close()
	}
	return nil
}

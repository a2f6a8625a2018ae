package ethereum

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EthereumQuantity is a hex encoded unsigned integer as returned by the JSON-RPC API.
type EthereumQuantity uint64

func (q EthereumQuantity) Value() uint64 {
	return uint64(q)
}

func (q EthereumQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeUint64(uint64(q)))
}

func (q *EthereumQuantity) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return err
	}
	*q = EthereumQuantity(v)
	return nil
}

// EthereumHexString is a 0x prefixed hex value such as a hash, an address or call data.
type EthereumHexString string

func (s EthereumHexString) Value() string {
	return string(s)
}

// Lower returns the value lower-cased, the form used for address comparisons.
func (s EthereumHexString) Lower() string {
	return strings.ToLower(string(s))
}

type EthereumBlock struct {
	Hash         EthereumHexString      `json:"hash"`
	ParentHash   EthereumHexString      `json:"parentHash"`
	Number       EthereumQuantity       `json:"number"`
	Timestamp    EthereumQuantity       `json:"timestamp"`
	Miner        EthereumHexString      `json:"miner"`
	GasUsed      EthereumQuantity       `json:"gasUsed"`
	GasLimit     EthereumQuantity       `json:"gasLimit"`
	Transactions []*EthereumTransaction `json:"transactions"`
	ChainId      config.ChainId         `json:"-"`
}

type EthereumTransaction struct {
	Hash             EthereumHexString `json:"hash"`
	BlockHash        EthereumHexString `json:"blockHash"`
	BlockNumber      EthereumQuantity  `json:"blockNumber"`
	TransactionIndex EthereumQuantity  `json:"transactionIndex"`
	From             EthereumHexString `json:"from"`
	// To is empty for contract creations
	To       EthereumHexString `json:"to"`
	Input    EthereumHexString `json:"input"`
	Value    *hexutil.Big      `json:"value"`
	Gas      EthereumQuantity  `json:"gas"`
	GasPrice *hexutil.Big      `json:"gasPrice"`
	Nonce    EthereumQuantity  `json:"nonce"`
}

type EthereumTransactionReceipt struct {
	TransactionHash   EthereumHexString   `json:"transactionHash"`
	TransactionIndex  EthereumQuantity    `json:"transactionIndex"`
	BlockHash         EthereumHexString   `json:"blockHash"`
	BlockNumber       EthereumQuantity    `json:"blockNumber"`
	From              EthereumHexString   `json:"from"`
	To                EthereumHexString   `json:"to"`
	ContractAddress   EthereumHexString   `json:"contractAddress"`
	GasUsed           EthereumQuantity    `json:"gasUsed"`
	CumulativeGasUsed EthereumQuantity    `json:"cumulativeGasUsed"`
	Status            EthereumQuantity    `json:"status"`
	Logs              []*EthereumEventLog `json:"logs"`
}

type EthereumEventLog struct {
	Address          EthereumHexString   `json:"address"`
	Topics           []EthereumHexString `json:"topics"`
	Data             EthereumHexString   `json:"data"`
	BlockNumber      EthereumQuantity    `json:"blockNumber"`
	BlockHash        EthereumHexString   `json:"blockHash"`
	TransactionHash  EthereumHexString   `json:"transactionHash"`
	TransactionIndex EthereumQuantity    `json:"transactionIndex"`
	LogIndex         EthereumQuantity    `json:"logIndex"`
	Removed          bool                `json:"removed"`
}

// TopicValues returns the topics as plain strings.
func (l *EthereumEventLog) TopicValues() []string {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t.Value()
	}
	return topics
}

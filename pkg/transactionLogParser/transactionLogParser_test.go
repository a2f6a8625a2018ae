package transactionLogParser

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiDecoder"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiRepository"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/clients/ethereum"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/contractInfo"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/metrics"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/output"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const erc20Abi = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256"}
	]}
]`

const (
	tokenAddress  = "0x00000000000000000000000000000000000000aa"
	transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

type fakeResolver struct {
	info *contractInfo.ContractInfo
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, address string) (*contractInfo.ContractInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type recordedDecode struct {
	kind    abi.Kind
	outcome metrics.DecodeOutcome
}

type fakeRecorder struct {
	decodes []recordedDecode
}

func (f *fakeRecorder) RecordDecode(kind abi.Kind, outcome metrics.DecodeOutcome) {
	f.decodes = append(f.decodes, recordedDecode{kind, outcome})
}

func newRepository(t *testing.T) *abiRepository.AbiRepository {
	store := memory.NewInMemoryEthloggerStore()
	require.NoError(t, store.SaveSignatures(context.Background(), abi.KindFunction, "12345678", []string{"publicOnly(uint256)"}))

	repo := abiRepository.NewAbiRepository(&abiRepository.AbiRepositoryConfig{SignatureSource: store}, zap.NewNop())
	loaded, err := repo.LoadJSON([]byte(erc20Abi), "ERC20.json")
	require.NoError(t, err)
	require.True(t, loaded)
	return repo
}

func erc20Info(t *testing.T, repo *abiRepository.AbiRepository) *contractInfo.ContractInfo {
	fp := abi.ComputeContractFingerprint([]string{"transfer(address,uint256)"}, []string{"Transfer(address,address,uint256)"})
	require.NotNil(t, repo.LookupContractByFingerprint(fp))
	return &contractInfo.ContractInfo{Address: tokenAddress, IsContract: true, Fingerprint: fp, ContractName: "ERC20"}
}

func pack(t *testing.T, inputs []abi.Input, values ...interface{}) string {
	args, err := abiDecoder.NewArguments(inputs)
	require.NoError(t, err)
	data, err := args.Pack(values...)
	require.NoError(t, err)
	return hex.EncodeToString(data)
}

func testBlock() *ethereum.EthereumBlock {
	return &ethereum.EthereumBlock{
		Number:    ethereum.EthereumQuantity(100),
		Hash:      ethereum.EthereumHexString("0xblock"),
		Timestamp: ethereum.EthereumQuantity(1_700_000_000),
		ChainId:   config.ChainId_EthereumMainnet,
	}
}

func Test_ParseTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	info := erc20Info(t, repo)

	input := "0xa9059cbb" + pack(t,
		[]abi.Input{{Type: "address"}, {Type: "uint256"}},
		common.HexToAddress("0x01"), big.NewInt(500),
	)
	tx := &ethereum.EthereumTransaction{
		Hash:             "0xtx",
		From:             "0x00000000000000000000000000000000000000FF",
		To:               tokenAddress,
		Input:            ethereum.EthereumHexString(input),
		Value:            (*hexutil.Big)(big.NewInt(0)),
		TransactionIndex: 4,
	}
	receipt := &ethereum.EthereumTransactionReceipt{Status: 1, GasUsed: 21000}

	t.Run("Should decode a known call with the contract fingerprint", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, &fakeResolver{info: info}, recorder, zap.NewNop())

		record, err := parser.ParseTransaction(ctx, tx, receipt, testBlock())
		require.NoError(t, err)

		assert.Equal(t, output.RecordType_Transaction, record.Type)
		assert.Equal(t, config.ChainId_EthereumMainnet, record.ChainId)
		assert.Equal(t, uint64(100), record.BlockNumber)
		assert.Equal(t, uint64(4), record.TransactionIndex)
		assert.Equal(t, "0x00000000000000000000000000000000000000ff", record.From)
		assert.Equal(t, "0", record.Value)
		assert.Equal(t, uint64(1), *record.Status)
		assert.Equal(t, "ERC20", record.ContractName)
		assert.Equal(t, "transfer(address,uint256)", record.MethodSignature)
		require.NotNil(t, record.Call)
		assert.Equal(t, "transfer", record.Call.Name)
		assert.Equal(t, int64(500), record.Call.Args["value"].(*big.Int).Int64())
		assert.Empty(t, record.DecodeError)
		assert.Equal(t, []recordedDecode{{abi.KindFunction, metrics.DecodeOutcome_Decoded}}, recorder.decodes)
	})

	t.Run("Should name unknown calls from the signature source", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, nil, recorder, zap.NewNop())

		unknown := *tx
		unknown.Input = "0x12345678" + ethereum.EthereumHexString(pack(t, []abi.Input{{Type: "uint256"}}, big.NewInt(1)))
		record, err := parser.ParseTransaction(ctx, &unknown, nil, testBlock())
		require.NoError(t, err)

		assert.Nil(t, record.Call)
		assert.Equal(t, "publicOnly(uint256)", record.MethodSignature)
		assert.Nil(t, record.Status)
		assert.Equal(t, []recordedDecode{{abi.KindFunction, metrics.DecodeOutcome_Unknown}}, recorder.decodes)
	})

	t.Run("Should attach decode failures to the record", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, &fakeResolver{info: info}, recorder, zap.NewNop())

		truncated := *tx
		truncated.Input = "0xa9059cbb0001"
		record, err := parser.ParseTransaction(ctx, &truncated, receipt, testBlock())
		require.NoError(t, err)

		assert.Nil(t, record.Call)
		assert.Contains(t, record.DecodeError, "0xtx")
		assert.Equal(t, []recordedDecode{{abi.KindFunction, metrics.DecodeOutcome_Failed}}, recorder.decodes)
	})

	t.Run("Should skip decoding of contract creations and value transfers", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, &fakeResolver{err: errors.New("unused")}, recorder, zap.NewNop())

		creation := *tx
		creation.To = ""
		record, err := parser.ParseTransaction(ctx, &creation, &ethereum.EthereumTransactionReceipt{ContractAddress: "0xABCD"}, testBlock())
		require.NoError(t, err)
		assert.Nil(t, record.Call)
		assert.Equal(t, "0xabcd", record.ContractAddress)

		transfer := *tx
		transfer.Input = "0x"
		record, err = parser.ParseTransaction(ctx, &transfer, receipt, testBlock())
		require.NoError(t, err)
		assert.Nil(t, record.Call)
		assert.Empty(t, recorder.decodes)
	})

	t.Run("Should fail when the contract cannot be resolved", func(t *testing.T) {
		parser := NewTransactionLogParser(repo, &fakeResolver{err: errors.New("rpc down")}, nil, zap.NewNop())
		_, err := parser.ParseTransaction(ctx, tx, receipt, testBlock())
		assert.ErrorContains(t, err, "rpc down")
	})
}

func Test_ParseLog(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	info := erc20Info(t, repo)

	transferLog := func() *ethereum.EthereumEventLog {
		return &ethereum.EthereumEventLog{
			Address: tokenAddress,
			Topics: []ethereum.EthereumHexString{
				transferTopic,
				"0x0000000000000000000000000000000000000000000000000000000000000001",
				"0x0000000000000000000000000000000000000000000000000000000000000002",
			},
			Data:            ethereum.EthereumHexString("0x" + pack(t, []abi.Input{{Type: "uint256"}}, big.NewInt(77))),
			TransactionHash: "0xtx",
			LogIndex:        3,
		}
	}

	t.Run("Should decode a known event", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, &fakeResolver{info: info}, recorder, zap.NewNop())

		record, err := parser.ParseLog(ctx, transferLog(), testBlock())
		require.NoError(t, err)

		assert.Equal(t, output.RecordType_Event, record.Type)
		assert.Equal(t, uint64(3), *record.LogIndex)
		assert.Equal(t, tokenAddress, record.Address)
		require.NotNil(t, record.Event)
		assert.Equal(t, "Transfer", record.Event.Name)
		assert.Equal(t, common.HexToAddress("0x01").Hex(), record.Event.Args["from"])
		assert.Equal(t, int64(77), record.Event.Args["value"].(*big.Int).Int64())
		assert.Equal(t, []recordedDecode{{abi.KindEvent, metrics.DecodeOutcome_Decoded}}, recorder.decodes)
	})

	t.Run("Should not hint with fingerprints of unknown contracts", func(t *testing.T) {
		parser := NewTransactionLogParser(repo, &fakeResolver{info: &contractInfo.ContractInfo{
			Address:     tokenAddress,
			IsContract:  true,
			Fingerprint: "0000",
		}}, nil, zap.NewNop())

		record, err := parser.ParseLog(ctx, transferLog(), testBlock())
		require.NoError(t, err)
		assert.NotNil(t, record.Event)
	})

	t.Run("Should attribute decode failures to the log", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, nil, recorder, zap.NewNop())

		lg := transferLog()
		lg.Topics = lg.Topics[:2]
		record, err := parser.ParseLog(ctx, lg, testBlock())
		require.NoError(t, err)

		assert.Nil(t, record.Event)
		assert.Contains(t, record.DecodeError, "log 3 of transaction 0xtx")
		assert.Equal(t, []recordedDecode{{abi.KindEvent, metrics.DecodeOutcome_Failed}}, recorder.decodes)
	})

	t.Run("Should keep logs without topics undecoded", func(t *testing.T) {
		recorder := &fakeRecorder{}
		parser := NewTransactionLogParser(repo, nil, recorder, zap.NewNop())

		lg := transferLog()
		lg.Topics = nil
		record, err := parser.ParseLog(ctx, lg, testBlock())
		require.NoError(t, err)
		assert.Nil(t, record.Event)
		assert.Empty(t, recorder.decodes)
	})
}

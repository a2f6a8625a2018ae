package abiRepository

import (
	"context"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiDecoder"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const erc20Abi = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}]},
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]},
	{"type":"constructor","inputs":[]}
]`

// same transfer and Transfer signatures with different parameter names plus an extra function
const tokenArtifact = `{
	"contractName": "MintableToken",
	"abi": [
		{"type":"function","name":"transfer","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}]},
		{"type":"function","name":"mint","inputs":[{"name":"amount","type":"uint256"}]},
		{"type":"event","name":"Transfer","inputs":[
			{"name":"src","type":"address","indexed":true},
			{"name":"dst","type":"address","indexed":true},
			{"name":"wad","type":"uint256","indexed":false}
		]}
	],
	"networks": {"1": {"address": "0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359"}}
}`

const transferSelector = "a9059cbb"
const transferTopic = "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func newTestRepository(t *testing.T, cfg *AbiRepositoryConfig) *AbiRepository {
	t.Helper()
	return NewAbiRepository(cfg, zap.NewNop())
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func loadJSON(t *testing.T, repo *AbiRepository, contents string, label string) {
	t.Helper()
	loaded, err := repo.LoadJSON([]byte(contents), label)
	require.NoError(t, err)
	require.True(t, loaded)
}

func transferCallData(t *testing.T, to string, value *big.Int) string {
	t.Helper()
	args, err := abiDecoder.NewArguments([]abi.Input{{Type: "address"}, {Type: "uint256"}})
	require.NoError(t, err)
	packed, err := args.Pack(common.HexToAddress(to), value)
	require.NoError(t, err)
	return "0x" + transferSelector + hex.EncodeToString(packed)
}

func fingerprintOf(t *testing.T, contents string, label string) string {
	t.Helper()
	doc, err := abi.ParseDocument([]byte(contents), label)
	require.NoError(t, err)
	fp, err := abi.FingerprintForItems(doc.Items)
	require.NoError(t, err)
	return fp
}

func Test_EmptyRepository(t *testing.T) {
	repo := newTestRepository(t, nil)

	assert.Equal(t, 0, repo.SignatureCount())
	assert.Equal(t, 0, repo.ContractCount())
	assert.Nil(t, repo.LookupByHash(transferSelector))
	assert.Nil(t, repo.LookupContractByFingerprint("abc"))
	assert.Nil(t, repo.LookupContractByAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"))

	call, err := repo.DecodeFunctionCall(transferCallData(t, "0x01", big.NewInt(1)), "")
	assert.NoError(t, err)
	assert.Nil(t, call)

	event, err := repo.DecodeLogEvent(&abi.RawLog{Topics: []string{"0x" + transferTopic}}, "")
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func Test_LoadDocument(t *testing.T) {
	t.Run("Should index functions and events of a document", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "abis/ERC20.json")

		assert.Equal(t, 3, repo.SignatureCount())
		match := repo.LookupByHash("0x" + strings.ToUpper(transferSelector))
		require.NotNil(t, match)
		assert.Equal(t, "transfer(address,uint256)", match.Signature)
		assert.Equal(t, abi.KindFunction, match.Kind)
		require.Len(t, match.Candidates, 1)
		assert.Equal(t, "ERC20", match.Candidates[0].ContractName)
		assert.Equal(t, "abis/ERC20.json", match.Candidates[0].FileName)

		event := repo.LookupByHash(transferTopic)
		require.NotNil(t, event)
		assert.Equal(t, "Transfer(address,address,uint256)", event.Signature)

		fp := fingerprintOf(t, erc20Abi, "ERC20.json")
		contract := repo.LookupContractByFingerprint(fp)
		require.NotNil(t, contract)
		assert.Equal(t, "ERC20", contract.ContractName)
		assert.Equal(t, fp, match.Candidates[0].ContractFingerprint)
	})

	t.Run("Should share an entry between contracts declaring the same signature", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		loadJSON(t, repo, tokenArtifact, "MintableToken.json")

		match := repo.LookupByHash(transferSelector)
		require.NotNil(t, match)
		require.Len(t, match.Candidates, 2)
		assert.Equal(t, "ERC20", match.Candidates[0].ContractName)
		assert.Equal(t, "MintableToken", match.Candidates[1].ContractName)
		assert.Equal(t, 4, repo.SignatureCount())
		assert.Equal(t, 2, repo.ContractCount())
	})

	t.Run("Should register build artifact addresses case insensitively", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, tokenArtifact, "MintableToken.json")

		contract := repo.LookupContractByAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
		require.NotNil(t, contract)
		assert.Equal(t, "MintableToken", contract.ContractName)
		assert.Equal(t, fingerprintOf(t, tokenArtifact, "x.json"), contract.Fingerprint)
		assert.Equal(t, []string{"0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"}, repo.ListContractAddresses())
	})

	t.Run("Should skip unsupported documents", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loaded, err := repo.LoadJSON([]byte(`{"hello":"world"}`), "junk.json")
		assert.NoError(t, err)
		assert.False(t, loaded)

		loaded, err = repo.LoadJSON([]byte(`not json`), "junk.json")
		assert.NoError(t, err)
		assert.False(t, loaded)
		assert.Equal(t, 0, repo.SignatureCount())
	})

	t.Run("Should not register a fingerprint for a document without signatures", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, `[{"type":"constructor","inputs":[]},{"type":"fallback"}]`, "Empty.json")
		assert.Equal(t, 0, repo.ContractCount())
		assert.Equal(t, 0, repo.SignatureCount())
	})

	t.Run("Should index anonymous events by their topic", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, `[{"type":"event","name":"Ping","anonymous":true,"inputs":[]}]`, "Ping.json")
		match := repo.LookupByHash(abi.ComputeSignatureHash("Ping()", abi.KindEvent))
		require.NotNil(t, match)
		assert.True(t, match.Candidates[0].Anonymous)
	})
}

func Test_LoadDocument_Collision(t *testing.T) {
	collidingHash := func(signature string, kind abi.Kind) string {
		if strings.HasPrefix(signature, "transfer(") || strings.HasPrefix(signature, "steal(") {
			return "deadbeef"
		}
		return abi.ComputeSignatureHash(signature, kind)
	}

	t.Run("Should fail across documents", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		repo.hashSignature = collidingHash
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		before := repo.SignatureCount()

		_, err := repo.LoadJSON([]byte(`[
			{"type":"function","name":"mint","inputs":[]},
			{"type":"function","name":"steal","inputs":[{"name":"from","type":"address"}]}
		]`), "Evil.json")
		require.Error(t, err)
		assert.True(t, abi.IsSignatureCollision(err))

		var collision *abi.SignatureCollisionError
		require.ErrorAs(t, err, &collision)
		assert.Equal(t, "deadbeef", collision.Hash)
		assert.Equal(t, "transfer(address,uint256)", collision.Existing)
		assert.Equal(t, "steal(address)", collision.Incoming)
		assert.Equal(t, "Evil.json", collision.FileName)

		// the colliding document is rejected as a whole
		assert.Equal(t, before, repo.SignatureCount())
		assert.Nil(t, repo.LookupByHash(abi.ComputeSignatureHash("mint()", abi.KindFunction)))
	})

	t.Run("Should fail within a single document", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		repo.hashSignature = collidingHash
		_, err := repo.LoadJSON([]byte(`[
			{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
			{"type":"function","name":"steal","inputs":[]}
		]`), "Self.json")
		assert.True(t, abi.IsSignatureCollision(err))
		assert.Equal(t, 0, repo.SignatureCount())
	})
}

func Test_LoadDirectory(t *testing.T) {
	t.Run("Should load matching files recursively and skip invalid ones", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "ERC20.json"), erc20Abi)
		writeFile(t, filepath.Join(dir, "nested", "deeper", "MintableToken.json"), tokenArtifact)
		writeFile(t, filepath.Join(dir, "broken.json"), `{"abi":`)
		writeFile(t, filepath.Join(dir, "README.md"), "not an abi")

		repo := newTestRepository(t, nil)
		count, err := repo.LoadDirectory(context.Background(), dir, DefaultLoadOptions())
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, 4, repo.SignatureCount())
		assert.Len(t, repo.LookupByHash(transferSelector).Candidates, 2)
	})

	t.Run("Should stay in the root when not recursive", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "ERC20.abi"), erc20Abi)
		writeFile(t, filepath.Join(dir, "ERC20.json"), erc20Abi)
		writeFile(t, filepath.Join(dir, "nested", "MintableToken.abi"), tokenArtifact)

		repo := newTestRepository(t, nil)
		count, err := repo.LoadDirectory(context.Background(), dir, &LoadOptions{Recursive: false, FileSuffix: ".abi"})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, 3, repo.SignatureCount())
	})

	t.Run("Should fail when the directory cannot be read", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		_, err := repo.LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
		assert.ErrorIs(t, err, abi.ErrDirectoryRead)
	})

	t.Run("Should abort on collisions", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.json"), erc20Abi)
		writeFile(t, filepath.Join(dir, "b.json"), `[{"type":"function","name":"steal","inputs":[]}]`)

		repo := newTestRepository(t, nil)
		repo.hashSignature = func(signature string, kind abi.Kind) string {
			if signature == "steal()" {
				return transferSelector
			}
			return abi.ComputeSignatureHash(signature, kind)
		}
		count, err := repo.LoadDirectory(context.Background(), dir, nil)
		assert.True(t, abi.IsSignatureCollision(err))
		assert.Equal(t, 1, count)
	})

	t.Run("Should load a single file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ERC20.json")
		writeFile(t, path, erc20Abi)

		repo := newTestRepository(t, nil)
		require.NoError(t, repo.LoadFile(path))
		assert.Equal(t, 3, repo.SignatureCount())
		assert.Error(t, repo.LoadFile(filepath.Join(dir, "missing.json")))
	})
}

func Test_DecodeFunctionCall(t *testing.T) {
	value, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	callData := transferCallData(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", value)
	erc20Fp := fingerprintOf(t, erc20Abi, "ERC20.json")
	tokenFp := fingerprintOf(t, tokenArtifact, "MintableToken.json")

	t.Run("Should decode a known call", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")

		call, err := repo.DecodeFunctionCall(callData, "")
		require.NoError(t, err)
		require.NotNil(t, call)
		assert.Equal(t, "transfer", call.Name)
		assert.Equal(t, "transfer(address,uint256)", call.Signature)
		assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", call.Args["to"])
		assert.Equal(t, 0, value.Cmp(call.Args["value"].(*big.Int)))
	})

	t.Run("Should return nothing for unknown or short call data", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")

		for _, data := range []string{"0x12345678", "0x", "", "0xa905"} {
			call, err := repo.DecodeFunctionCall(data, "")
			assert.NoError(t, err)
			assert.Nil(t, call)
		}
	})

	t.Run("Should pick the candidate matching the fingerprint hint", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		loadJSON(t, repo, tokenArtifact, "MintableToken.json")

		call, err := repo.DecodeFunctionCall(callData, tokenFp)
		require.NoError(t, err)
		require.NotNil(t, call)
		assert.Contains(t, call.Args, "recipient")

		call, err = repo.DecodeFunctionCall(callData, "0x"+erc20Fp)
		require.NoError(t, err)
		require.NotNil(t, call)
		assert.Contains(t, call.Args, "to")
	})

	t.Run("Should apply the candidate policy without a hint", func(t *testing.T) {
		tests := []struct {
			policy   CallCandidatePolicy
			wantNil  bool
			wantName string
		}{
			{CallCandidatePolicyFirst, false, "to"},
			{CallCandidatePolicyLast, false, "recipient"},
			{CallCandidatePolicyStrict, true, ""},
		}
		for _, tt := range tests {
			t.Run(string(tt.policy), func(t *testing.T) {
				repo := newTestRepository(t, &AbiRepositoryConfig{CallCandidatePolicy: tt.policy})
				loadJSON(t, repo, erc20Abi, "ERC20.json")
				loadJSON(t, repo, tokenArtifact, "MintableToken.json")

				call, err := repo.DecodeFunctionCall(callData, "")
				require.NoError(t, err)
				if tt.wantNil {
					assert.Nil(t, call)
					return
				}
				require.NotNil(t, call)
				assert.Contains(t, call.Args, tt.wantName)
			})
		}
	})

	t.Run("Should decline a call whose hint matches no candidate", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		call, err := repo.DecodeFunctionCall(callData, "ff")
		assert.NoError(t, err)
		assert.Nil(t, call)
	})

	t.Run("Should fall back on hint mismatch when configured", func(t *testing.T) {
		repo := newTestRepository(t, &AbiRepositoryConfig{FallbackOnHintMismatch: true})
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		call, err := repo.DecodeFunctionCall(callData, "ff")
		require.NoError(t, err)
		require.NotNil(t, call)
		assert.Equal(t, "transfer", call.Name)
	})

	t.Run("Should fail on truncated parameters", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		_, err := repo.DecodeFunctionCall("0x"+transferSelector+"0000", "")
		assert.Error(t, err)
	})
}

func Test_DecodeLogEvent(t *testing.T) {
	args, err := abiDecoder.NewArguments([]abi.Input{{Type: "uint256"}})
	require.NoError(t, err)
	packed, err := args.Pack(big.NewInt(1000))
	require.NoError(t, err)
	log := &abi.RawLog{
		Data: "0x" + hex.EncodeToString(packed),
		Topics: []string{
			"0x" + transferTopic,
			"0x0000000000000000000000000000000000000000000000000000000000000abc",
			"0x000000000000000000000000fb6916095ca1df60bb79ce92ce3ea74c37c5d359",
		},
	}
	erc20Fp := fingerprintOf(t, erc20Abi, "ERC20.json")

	t.Run("Should decode indexed and data parameters", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")

		event, err := repo.DecodeLogEvent(log, erc20Fp)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "Transfer", event.Name)
		assert.Equal(t, common.HexToAddress("0xabc").Hex(), event.Args["from"])
		assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", event.Args["to"])
		assert.Equal(t, int64(1000), event.Args["value"].(*big.Int).Int64())
	})

	t.Run("Should not decode when the hint matches no candidate", func(t *testing.T) {
		repo := newTestRepository(t, &AbiRepositoryConfig{FallbackOnHintMismatch: true})
		loadJSON(t, repo, erc20Abi, "ERC20.json")

		event, err := repo.DecodeLogEvent(log, "ff")
		assert.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("Should apply the candidate policy without a hint", func(t *testing.T) {
		repo := newTestRepository(t, &AbiRepositoryConfig{CallCandidatePolicy: CallCandidatePolicyLast})
		loadJSON(t, repo, erc20Abi, "ERC20.json")
		loadJSON(t, repo, tokenArtifact, "MintableToken.json")

		event, err := repo.DecodeLogEvent(log, "")
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Contains(t, event.Args, "wad")
	})

	t.Run("Should skip logs without topics or with unknown topics", func(t *testing.T) {
		repo := newTestRepository(t, nil)
		loadJSON(t, repo, erc20Abi, "ERC20.json")

		for _, l := range []*abi.RawLog{nil, {Data: "0x"}, {Topics: []string{"0x" + strings.Repeat("1", 64)}}} {
			event, err := repo.DecodeLogEvent(l, "")
			assert.NoError(t, err)
			assert.Nil(t, event)
		}
	})
}

type fakeSignatureSource map[string][]string

func (f fakeSignatureSource) GetSignatures(_ context.Context, _ abi.Kind, hash string) ([]string, error) {
	sigs, ok := f[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return sigs, nil
}

func Test_LookupSignatureName(t *testing.T) {
	source := fakeSignatureSource{"095ea7b3": {"approve(address,uint256)"}}
	repo := newTestRepository(t, &AbiRepositoryConfig{SignatureSource: source})
	loadJSON(t, repo, erc20Abi, "ERC20.json")

	name, err := repo.LookupSignatureName(context.Background(), "0x"+transferSelector)
	require.NoError(t, err)
	assert.Equal(t, "transfer(address,uint256)", name)

	name, err = repo.LookupSignatureName(context.Background(), "0x095ea7b3")
	require.NoError(t, err)
	assert.Equal(t, "approve(address,uint256)", name)

	name, err = repo.LookupSignatureName(context.Background(), "0x11111111")
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func Test_Shutdown(t *testing.T) {
	repo := newTestRepository(t, nil)
	loadJSON(t, repo, tokenArtifact, "MintableToken.json")
	require.NotZero(t, repo.SignatureCount())

	repo.Shutdown()
	repo.Shutdown()

	assert.Equal(t, 0, repo.SignatureCount())
	assert.Equal(t, 0, repo.ContractCount())
	assert.Nil(t, repo.LookupByHash(transferSelector))
	assert.Nil(t, repo.LookupContractByAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"))

	loadJSON(t, repo, erc20Abi, "ERC20.json")
	assert.Equal(t, 3, repo.SignatureCount())
}

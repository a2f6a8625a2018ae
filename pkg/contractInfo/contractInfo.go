// Package contractInfo identifies deployed contracts so their calls and logs can be decoded with a
// fingerprint hint.
package contractInfo

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiRepository"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultCacheSize = 25_000

	opPush1  = 0x60
	opPush4  = 0x63
	opPush32 = 0x7f
)

type ContractInfo struct {
	Address      string `json:"address"`
	IsContract   bool   `json:"isContract"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	ContractName string `json:"contractName,omitempty"`
}

// FingerprintHint returns the fingerprint when it names a loaded contract, "" otherwise. A
// fingerprint computed from a partial match would reject every candidate of a hinted lookup.
func (ci *ContractInfo) FingerprintHint() string {
	if ci == nil || ci.ContractName == "" {
		return ""
	}
	return ci.Fingerprint
}

type CodeReader interface {
	GetCode(ctx context.Context, address string) (string, error)
}

type Repository interface {
	LookupByHash(hash string) *abiRepository.AbiMatch
	LookupContractByAddress(address string) *abi.ContractIdentity
	LookupContractByFingerprint(fingerprint string) *abi.ContractIdentity
}

type ResolverConfig struct {
	CacheSize int
}

type Resolver struct {
	config *ResolverConfig
	client CodeReader
	repo   Repository
	cache  *lru.Cache[string, *ContractInfo]
	logger *zap.Logger
}

func NewResolver(cfg *ResolverConfig, client CodeReader, repo Repository, logger *zap.Logger) (*Resolver, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *ContractInfo](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create contract info cache")
	}
	return &Resolver{
		config: cfg,
		client: client,
		repo:   repo,
		cache:  cache,
		logger: logger,
	}, nil
}

// Resolve returns what is known about the account at address. Accounts without code are not
// contracts. Contracts whose interface matches no loaded document still carry the fingerprint
// computed from the signatures found in their bytecode.
func (r *Resolver) Resolve(ctx context.Context, address string) (*ContractInfo, error) {
	key := strings.ToLower(address)
	if info, ok := r.cache.Get(key); ok {
		return info, nil
	}

	info := &ContractInfo{Address: key}
	if contract := r.repo.LookupContractByAddress(key); contract != nil {
		info.IsContract = true
		info.Fingerprint = contract.Fingerprint
		info.ContractName = contract.ContractName
		r.cache.Add(key, info)
		return info, nil
	}

	code, err := r.client.GetCode(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get code of %s", key)
	}
	bytecode, err := hex.DecodeString(strings.TrimPrefix(code, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid code of %s: %w", key, err)
	}
	if len(bytecode) > 0 {
		info.IsContract = true
		info.Fingerprint = r.fingerprintBytecode(bytecode)
		if contract := r.repo.LookupContractByFingerprint(info.Fingerprint); contract != nil {
			info.ContractName = contract.ContractName
		}
		r.logger.Sugar().Debugw("Resolved contract",
			zap.String("address", key),
			zap.String("fingerprint", info.Fingerprint),
			zap.String("contractName", info.ContractName),
		)
	}
	r.cache.Add(key, info)
	return info, nil
}

// Len returns the number of cached addresses.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

func (r *Resolver) Purge() {
	r.cache.Purge()
}

func (r *Resolver) fingerprintBytecode(bytecode []byte) string {
	functions := make([]string, 0)
	events := make([]string, 0)
	seen := make(map[string]bool)
	for _, operand := range pushOperands(bytecode) {
		hash := hex.EncodeToString(operand)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		match := r.repo.LookupByHash(hash)
		if match == nil {
			continue
		}
		if match.Kind == abi.KindFunction {
			functions = append(functions, match.Signature)
		} else {
			events = append(events, match.Signature)
		}
	}
	sort.Strings(functions)
	sort.Strings(events)
	return abi.ComputeContractFingerprint(functions, events)
}

// pushOperands returns the operands of every PUSH4 and PUSH32 instruction. Operands of other push
// instructions are skipped so their bytes are never read as opcodes.
func pushOperands(bytecode []byte) [][]byte {
	operands := make([][]byte, 0)
	for i := 0; i < len(bytecode); i++ {
		op := bytecode[i]
		if op < opPush1 || op > opPush32 {
			continue
		}
		size := int(op-opPush1) + 1
		if i+size >= len(bytecode) {
			break
		}
		if op == opPush4 || op == opPush32 {
			operands = append(operands, bytecode[i+1:i+1+size])
		}
		i += size
	}
	return operands
}

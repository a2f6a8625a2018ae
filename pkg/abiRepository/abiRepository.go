// Package abiRepository indexes the functions and events of loaded interface documents by their
// selector or topic hash and decodes call data and logs against that index.
//
// Loading mutates the index under an exclusive lock. Lookups and decodes only take the read lock,
// so they can run concurrently once loading is done.
package abiRepository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiDecoder"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/contractStore/inMemoryContractStore"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
	"go.uber.org/zap"
)

// CallCandidatePolicy selects a candidate when a hash has several and no fingerprint hint narrows them.
type CallCandidatePolicy string

const (
	// CallCandidatePolicyFirst picks the first loaded candidate
	CallCandidatePolicyFirst CallCandidatePolicy = "first"
	// CallCandidatePolicyLast picks the most recently loaded candidate
	CallCandidatePolicyLast CallCandidatePolicy = "last"
	// CallCandidatePolicyStrict declines to decode when candidates come from different contracts
	CallCandidatePolicyStrict CallCandidatePolicy = "strict"
)

func (p CallCandidatePolicy) IsValid() bool {
	switch p {
	case CallCandidatePolicyFirst, CallCandidatePolicyLast, CallCandidatePolicyStrict:
		return true
	}
	return false
}

// SignatureSource resolves hashes that no loaded document declares, e.g. from a public signature table.
// Implementations return storage.ErrNotFound for unknown hashes.
type SignatureSource interface {
	GetSignatures(ctx context.Context, kind abi.Kind, hash string) ([]string, error)
}

type AbiRepositoryConfig struct {
	CallCandidatePolicy CallCandidatePolicy
	// FallbackOnHintMismatch lets a call whose hint matches no candidate fall back to the candidate policy.
	// Events never fall back.
	FallbackOnHintMismatch bool
	SignatureSource        SignatureSource
}

// AbiMatch is the index entry of one hash: its canonical signature and every item sharing it.
type AbiMatch struct {
	Signature  string
	Kind       abi.Kind
	Candidates []*abi.AbiItem
}

type AbiRepository struct {
	mu         sync.RWMutex
	config     *AbiRepositoryConfig
	logger     *zap.Logger
	signatures map[string]*AbiMatch
	contracts  *inMemoryContractStore.InMemoryContractStore

	// swapped in tests to provoke hash collisions
	hashSignature func(signature string, kind abi.Kind) string
}

func NewAbiRepository(config *AbiRepositoryConfig, logger *zap.Logger) *AbiRepository {
	if config == nil {
		config = &AbiRepositoryConfig{}
	}
	if config.CallCandidatePolicy == "" {
		config.CallCandidatePolicy = CallCandidatePolicyFirst
	}
	return &AbiRepository{
		config:        config,
		logger:        logger,
		signatures:    make(map[string]*AbiMatch),
		contracts:     inMemoryContractStore.NewInMemoryContractStore(logger),
		hashSignature: abi.ComputeSignatureHash,
	}
}

type pendingItem struct {
	item      *abi.Item
	signature string
	hash      string
	kind      abi.Kind
}

// LoadDocument indexes the functions and events of a parsed document. A hash already indexed under a
// different canonical signature fails with a *abi.SignatureCollisionError and leaves the index untouched.
func (ar *AbiRepository) LoadDocument(doc *abi.Document) error {
	if doc == nil {
		return nil
	}
	functions, events, err := abi.ContractSignatures(doc.Items)
	if err != nil {
		return err
	}
	fingerprint := abi.ComputeContractFingerprint(functions, events)

	pending := make([]pendingItem, 0, len(doc.Items))
	for i := range doc.Items {
		item := &doc.Items[i]
		if !item.IsDecodable() {
			continue
		}
		sig, err := abi.ComputeSignature(item.Name, item.Inputs)
		if err != nil {
			return err
		}
		kind := abi.Kind(item.Type)
		pending = append(pending, pendingItem{
			item:      item,
			signature: sig,
			hash:      ar.hashSignature(sig, kind),
			kind:      kind,
		})
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	// validate everything first so a collision does not leave half a document behind
	seen := make(map[string]string, len(pending))
	for _, p := range pending {
		existing := seen[p.hash]
		if match, ok := ar.signatures[p.hash]; ok {
			existing = match.Signature
		}
		if existing != "" && existing != p.signature {
			return &abi.SignatureCollisionError{
				Kind:     p.kind,
				Hash:     p.hash,
				Existing: existing,
				Incoming: p.signature,
				FileName: doc.SourceLabel,
			}
		}
		seen[p.hash] = p.signature
	}

	for _, p := range pending {
		match, ok := ar.signatures[p.hash]
		if !ok {
			match = &AbiMatch{Signature: p.signature, Kind: p.kind}
			ar.signatures[p.hash] = match
		}
		ar.logger.Sugar().Debugw("Indexed signature",
			zap.String("kind", string(p.kind)),
			zap.String("signature", p.signature),
			zap.String("hash", p.hash),
		)
		match.Candidates = append(match.Candidates, &abi.AbiItem{
			Kind:                p.kind,
			Name:                p.item.Name,
			Inputs:              p.item.Inputs,
			Anonymous:           p.item.Anonymous,
			ContractName:        doc.ContractName,
			ContractFingerprint: fingerprint,
			ContractAddresses:   doc.Addresses,
			FileName:            doc.SourceLabel,
		})
	}

	ar.contracts.AddContract(&abi.ContractIdentity{
		ContractName: doc.ContractName,
		FileName:     doc.SourceLabel,
		Fingerprint:  fingerprint,
		Addresses:    doc.Addresses,
	})
	ar.logger.Sugar().Debugw("Loaded interface document",
		zap.String("contractName", doc.ContractName),
		zap.String("fileName", doc.SourceLabel),
		zap.String("fingerprint", fingerprint),
		zap.Int("signatures", len(pending)),
	)
	return nil
}

// LoadJSON parses and indexes a raw document. Unsupported or malformed documents are skipped with a
// warning and reported as not loaded; only collisions are returned as errors.
func (ar *AbiRepository) LoadJSON(data []byte, sourceLabel string) (bool, error) {
	doc, err := abi.ParseDocument(data, sourceLabel)
	if err != nil {
		ar.logger.Sugar().Warnw("Skipping invalid interface document",
			zap.String("fileName", sourceLabel),
			zap.Error(err),
		)
		return false, nil
	}
	if err := ar.LoadDocument(doc); err != nil {
		return false, err
	}
	return true, nil
}

// LookupByHash returns the index entry of a selector or topic. Unknown hashes return nil.
func (ar *AbiRepository) LookupByHash(hash string) *AbiMatch {
	ar.mu.RLock()
	defer ar.mu.RUnlock()
	match, ok := ar.signatures[abi.NormalizeHash(hash)]
	if !ok {
		return nil
	}
	candidates := make([]*abi.AbiItem, len(match.Candidates))
	copy(candidates, match.Candidates)
	return &AbiMatch{Signature: match.Signature, Kind: match.Kind, Candidates: candidates}
}

// HasSignature reports whether a selector or topic is indexed.
func (ar *AbiRepository) HasSignature(hash string) bool {
	ar.mu.RLock()
	defer ar.mu.RUnlock()
	_, ok := ar.signatures[abi.NormalizeHash(hash)]
	return ok
}

// LookupSignatureName returns the canonical signature of a hash, consulting the configured
// SignatureSource for hashes no loaded document declares. Unknown hashes return "".
func (ar *AbiRepository) LookupSignatureName(ctx context.Context, hash string) (string, error) {
	if match := ar.LookupByHash(hash); match != nil {
		return match.Signature, nil
	}
	if ar.config.SignatureSource == nil {
		return "", nil
	}
	kind, ok := abi.KindForHash(hash)
	if !ok {
		return "", nil
	}
	sigs, err := ar.config.SignatureSource.GetSignatures(ctx, kind, abi.NormalizeHash(hash))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if len(sigs) == 0 {
		return "", nil
	}
	return sigs[0], nil
}

func (ar *AbiRepository) LookupContractByFingerprint(fingerprint string) *abi.ContractIdentity {
	return ar.contracts.GetContractByFingerprint(fingerprint)
}

func (ar *AbiRepository) LookupContractByAddress(address string) *abi.ContractIdentity {
	return ar.contracts.GetContractByAddress(address)
}

func (ar *AbiRepository) ListContractAddresses() []string {
	return ar.contracts.ListContractAddresses()
}

// SignatureCount returns the number of distinct indexed hashes.
func (ar *AbiRepository) SignatureCount() int {
	ar.mu.RLock()
	defer ar.mu.RUnlock()
	return len(ar.signatures)
}

// ContractCount returns the number of distinct contract fingerprints.
func (ar *AbiRepository) ContractCount() int {
	return ar.contracts.Count()
}

// DecodeFunctionCall decodes hex call data whose first 4 bytes are the selector. Unknown selectors and
// calls no candidate can be chosen for return nil without an error.
func (ar *AbiRepository) DecodeFunctionCall(callData string, fingerprintHint string) (*abi.DecodedCall, error) {
	data := strings.TrimPrefix(strings.TrimPrefix(callData, "0x"), "0X")
	if len(data) < abi.FunctionSelectorLength*2 {
		return nil, nil
	}
	selector := strings.ToLower(data[:abi.FunctionSelectorLength*2])

	signature, item := ar.selectCandidate(selector, fingerprintHint, abi.KindFunction)
	if item == nil {
		return nil, nil
	}
	payload, err := hex.DecodeString(data[abi.FunctionSelectorLength*2:])
	if err != nil {
		return nil, fmt.Errorf("invalid call data for %s: %w", signature, err)
	}
	return abiDecoder.DecodeFunctionCall(payload, item, signature)
}

// DecodeLogEvent decodes a log using topics[0] as the event hash. Logs without topics, unknown topics
// and logs whose fingerprint hint matches no candidate return nil without an error.
func (ar *AbiRepository) DecodeLogEvent(log *abi.RawLog, fingerprintHint string) (*abi.DecodedEvent, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, nil
	}
	signature, item := ar.selectCandidate(abi.NormalizeHash(log.Topics[0]), fingerprintHint, abi.KindEvent)
	if item == nil {
		return nil, nil
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(log.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid log data for %s: %w", signature, err)
	}
	return abiDecoder.DecodeLogEvent(payload, log.Topics, item, signature)
}

func (ar *AbiRepository) selectCandidate(hash string, fingerprintHint string, kind abi.Kind) (string, *abi.AbiItem) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	match, ok := ar.signatures[hash]
	if !ok || match.Kind != kind || len(match.Candidates) == 0 {
		ar.logger.Sugar().Debugw("No signature found", zap.String("kind", string(kind)), zap.String("hash", hash))
		return "", nil
	}

	if fingerprintHint != "" {
		hint := abi.NormalizeHash(fingerprintHint)
		for _, c := range match.Candidates {
			if c.ContractFingerprint == hint {
				return match.Signature, c
			}
		}
		ar.logger.Sugar().Debugw("No candidate matches contract fingerprint",
			zap.String("signature", match.Signature),
			zap.String("fingerprint", hint),
		)
		if kind == abi.KindEvent || !ar.config.FallbackOnHintMismatch {
			return "", nil
		}
	}

	switch ar.config.CallCandidatePolicy {
	case CallCandidatePolicyLast:
		return match.Signature, match.Candidates[len(match.Candidates)-1]
	case CallCandidatePolicyStrict:
		first := match.Candidates[0]
		for _, c := range match.Candidates[1:] {
			if c.ContractFingerprint != first.ContractFingerprint {
				ar.logger.Sugar().Debugw("Declining ambiguous decode",
					zap.String("signature", match.Signature),
					zap.Int("candidates", len(match.Candidates)),
				)
				return "", nil
			}
		}
		return match.Signature, first
	default:
		return match.Signature, match.Candidates[0]
	}
}

// Shutdown clears every index. The repository stays usable and can be loaded again.
func (ar *AbiRepository) Shutdown() {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	ar.signatures = make(map[string]*AbiMatch)
	ar.contracts.Reset()
}

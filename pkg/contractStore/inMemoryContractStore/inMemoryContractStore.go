package inMemoryContractStore

import (
	"sort"
	"strings"
	"sync"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"go.uber.org/zap"
)

type InMemoryContractStore struct {
	mu            sync.RWMutex
	byFingerprint map[string]*abi.ContractIdentity
	byAddress     map[string]*abi.ContractIdentity
	logger        *zap.Logger
}

func NewInMemoryContractStore(logger *zap.Logger) *InMemoryContractStore {
	return &InMemoryContractStore{
		byFingerprint: make(map[string]*abi.ContractIdentity),
		byAddress:     make(map[string]*abi.ContractIdentity),
		logger:        logger,
	}
}

// AddContract registers a contract under its fingerprint and every deployment address. Contracts
// without a fingerprint are only reachable by address. A later contract replaces an earlier one
// with the same key.
func (ics *InMemoryContractStore) AddContract(contract *abi.ContractIdentity) {
	if contract == nil {
		return
	}
	ics.mu.Lock()
	defer ics.mu.Unlock()

	if contract.Fingerprint != "" {
		if existing, ok := ics.byFingerprint[contract.Fingerprint]; ok && existing.FileName != contract.FileName {
			ics.logger.Sugar().Debugw("Replacing contract with identical fingerprint",
				zap.String("fingerprint", contract.Fingerprint),
				zap.String("previous", existing.FileName),
				zap.String("current", contract.FileName),
			)
		}
		ics.byFingerprint[contract.Fingerprint] = contract
	}
	for _, address := range contract.Addresses {
		ics.byAddress[strings.ToLower(address)] = contract
	}
}

func (ics *InMemoryContractStore) GetContractByFingerprint(fingerprint string) *abi.ContractIdentity {
	ics.mu.RLock()
	defer ics.mu.RUnlock()
	return ics.byFingerprint[abi.NormalizeHash(fingerprint)]
}

func (ics *InMemoryContractStore) GetContractByAddress(address string) *abi.ContractIdentity {
	address = strings.ToLower(address)

	ics.mu.RLock()
	defer ics.mu.RUnlock()
	contract, ok := ics.byAddress[address]
	if !ok {
		ics.logger.Sugar().Debugw("Contract not found", zap.String("address", address))
		return nil
	}
	return contract
}

func (ics *InMemoryContractStore) ListContractAddresses() []string {
	ics.mu.RLock()
	defer ics.mu.RUnlock()
	addresses := make([]string, 0, len(ics.byAddress))
	for address := range ics.byAddress {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// Count returns the number of distinct fingerprints.
func (ics *InMemoryContractStore) Count() int {
	ics.mu.RLock()
	defer ics.mu.RUnlock()
	return len(ics.byFingerprint)
}

func (ics *InMemoryContractStore) Reset() {
	ics.mu.Lock()
	defer ics.mu.Unlock()
	ics.byFingerprint = make(map[string]*abi.ContractIdentity)
	ics.byAddress = make(map[string]*abi.ContractIdentity)
}

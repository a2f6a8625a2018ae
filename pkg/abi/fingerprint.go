package abi

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeContractFingerprint hashes the concatenation of a contract's function signatures and
// event signatures. Both lists must already be sorted lexicographically; fingerprint stability
// depends on that ordering. A contract without any signature has no fingerprint and "" is returned.
func ComputeContractFingerprint(sortedFunctions []string, sortedEvents []string) string {
	if len(sortedFunctions) == 0 && len(sortedEvents) == 0 {
		return ""
	}
	all := make([]string, 0, len(sortedFunctions)+len(sortedEvents))
	all = append(all, sortedFunctions...)
	all = append(all, sortedEvents...)
	return hex.EncodeToString(crypto.Keccak256([]byte(strings.Join(all, ","))))
}

// ContractSignatures returns the sorted canonical function and event signatures of the decodable
// items of one document.
func ContractSignatures(items []Item) (functions []string, events []string, err error) {
	functions = make([]string, 0)
	events = make([]string, 0)
	for i := range items {
		item := &items[i]
		if !item.IsDecodable() {
			continue
		}
		sig, err := ComputeSignature(item.Name, item.Inputs)
		if err != nil {
			return nil, nil, err
		}
		if item.Type == string(KindFunction) {
			functions = append(functions, sig)
		} else {
			events = append(events, sig)
		}
	}
	sort.Strings(functions)
	sort.Strings(events)
	return functions, events, nil
}

// FingerprintForItems computes the contract fingerprint of the decodable items of one document.
func FingerprintForItems(items []Item) (string, error) {
	functions, events, err := ContractSignatures(items)
	if err != nil {
		return "", err
	}
	return ComputeContractFingerprint(functions, events), nil
}

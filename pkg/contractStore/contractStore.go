package contractStore

import "github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"

// IContractStore indexes loaded contract identities by fingerprint and deployment address.
type IContractStore interface {
	AddContract(contract *abi.ContractIdentity)
	GetContractByFingerprint(fingerprint string) *abi.ContractIdentity
	GetContractByAddress(address string) *abi.ContractIdentity
	ListContractAddresses() []string
	Count() int
	Reset()
}

package config

import (
	"fmt"
	"slices"
	"strings"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumHolesky ChainId = 17000
	ChainId_EthereumHoodi   ChainId = 560048
)

var (
	KnownChainIds = []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumHolesky,
		ChainId_EthereumHoodi,
	}
)

func (c ChainId) IsKnown() bool {
	return slices.Contains(KnownChainIds, c)
}

func (c ChainId) String() string {
	return fmt.Sprintf("%d", uint(c))
}

const (
	CallCandidatePolicy_First  = "first"
	CallCandidatePolicy_Last   = "last"
	CallCandidatePolicy_Strict = "strict"

	StorageType_Memory = "memory"
	StorageType_Badger = "badger"
)

// KebabToSnakeCase converts a flag name like abi-file-suffix to the viper key abi_file_suffix.
func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func NormalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

package ethereum

import "strings"

type NodePlatform string

const (
	NodePlatform_Geth    NodePlatform = "geth"
	NodePlatform_Quorum  NodePlatform = "quorum"
	NodePlatform_Parity  NodePlatform = "parity"
	NodePlatform_Generic NodePlatform = "generic"
)

// DetectNodePlatform classifies a node from its web3_clientVersion string.
func DetectNodePlatform(version string) NodePlatform {
	switch {
	case strings.HasPrefix(version, "Geth/"):
		if strings.Contains(version, "quorum") {
			return NodePlatform_Quorum
		}
		return NodePlatform_Geth
	case strings.HasPrefix(version, "Parity//"), strings.HasPrefix(version, "Parity-Ethereum/"):
		return NodePlatform_Parity
	default:
		return NodePlatform_Generic
	}
}

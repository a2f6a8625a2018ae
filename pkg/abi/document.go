package abi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentShape is the resolved shape of an interface document.
type DocumentShape int

const (
	DocumentShapeUnsupported DocumentShape = iota
	// DocumentShapeItemArray is a bare array of interface items
	DocumentShapeItemArray
	// DocumentShapeBuildArtifact is a compiler build artifact carrying contractName, abi and networks
	DocumentShapeBuildArtifact
)

func (s DocumentShape) String() string {
	switch s {
	case DocumentShapeItemArray:
		return "item-array"
	case DocumentShapeBuildArtifact:
		return "build-artifact"
	default:
		return "unsupported"
	}
}

// Document is a parsed interface document, resolved once to one of its supported shapes.
type Document struct {
	Shape        DocumentShape
	ContractName string
	SourceLabel  string
	Items        []Item
	// Addresses holds the deployment addresses of a build artifact, sorted by network id
	Addresses []string
}

type buildArtifactNetwork struct {
	Address string `json:"address"`
}

type buildArtifact struct {
	ContractName string                          `json:"contractName"`
	Abi          []Item                          `json:"abi"`
	Networks     map[string]buildArtifactNetwork `json:"networks,omitempty"`
}

// ParseDocument resolves raw JSON into a Document. Documents that are valid JSON but of an
// unsupported shape return ErrUnsupportedDocument.
func ParseDocument(data []byte, sourceLabel string) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnsupportedDocument, sourceLabel)
	}

	switch trimmed[0] {
	case '[':
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to parse interface items of %s: %w", sourceLabel, err)
		}
		return &Document{
			Shape:        DocumentShapeItemArray,
			ContractName: ContractNameFromLabel(sourceLabel),
			SourceLabel:  sourceLabel,
			Items:        items,
		}, nil
	case '{':
		if !isBuildArtifact(trimmed) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, sourceLabel)
		}
		var artifact buildArtifact
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return nil, fmt.Errorf("failed to parse build artifact %s: %w", sourceLabel, err)
		}
		name := artifact.ContractName
		if name == "" {
			name = ContractNameFromLabel(sourceLabel)
		}
		return &Document{
			Shape:        DocumentShapeBuildArtifact,
			ContractName: name,
			SourceLabel:  sourceLabel,
			Items:        artifact.Abi,
			Addresses:    networkAddresses(artifact.Networks),
		}, nil
	default:
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", sourceLabel, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, sourceLabel)
	}
}

// isBuildArtifact checks that an object carries a string contractName and an array abi.
func isBuildArtifact(data []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	name, ok := fields["contractName"]
	if !ok || len(name) == 0 || name[0] != '"' {
		return false
	}
	items, ok := fields["abi"]
	return ok && len(items) > 0 && items[0] == '['
}

func networkAddresses(networks map[string]buildArtifactNetwork) []string {
	ids := make([]string, 0, len(networks))
	for id := range networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	addresses := make([]string, 0, len(ids))
	for _, id := range ids {
		if addr := networks[id].Address; addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

// ContractNameFromLabel derives a contract name from a file path: its base name up to the first dot.
func ContractNameFromLabel(label string) string {
	base := filepath.Base(label)
	if idx := strings.Index(base, "."); idx >= 0 {
		return base[:idx]
	}
	return base
}

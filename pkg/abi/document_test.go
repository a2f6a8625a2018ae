package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseDocument(t *testing.T) {
	t.Run("Should parse an item array and name it after the file", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`[
			{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
			{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true}],"anonymous":false}
		]`), "/abis/ERC20.abi.json")
		require.NoError(t, err)

		assert.Equal(t, DocumentShapeItemArray, doc.Shape)
		assert.Equal(t, "ERC20", doc.ContractName)
		assert.Equal(t, "/abis/ERC20.abi.json", doc.SourceLabel)
		require.Len(t, doc.Items, 2)
		assert.True(t, doc.Items[1].Inputs[0].Indexed)
		assert.Empty(t, doc.Addresses)
	})

	t.Run("Should parse a build artifact with deployment addresses", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{
			"contractName": "Token",
			"abi": [{"type":"function","name":"mint","inputs":[]}],
			"networks": {
				"5": {"address": "0x2222222222222222222222222222222222222222"},
				"1": {"address": "0x1111111111111111111111111111111111111111"},
				"42": {}
			}
		}`), "build/contracts/Other.json")
		require.NoError(t, err)

		assert.Equal(t, DocumentShapeBuildArtifact, doc.Shape)
		assert.Equal(t, "Token", doc.ContractName)
		require.Len(t, doc.Items, 1)
		assert.Equal(t, []string{
			"0x1111111111111111111111111111111111111111",
			"0x2222222222222222222222222222222222222222",
		}, doc.Addresses)
	})

	t.Run("Should fall back to the file name for an unnamed artifact", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"contractName":"","abi":[]}`), "Vault.json")
		require.NoError(t, err)
		assert.Equal(t, "Vault", doc.ContractName)
	})

	t.Run("Should reject unsupported shapes", func(t *testing.T) {
		for _, data := range []string{
			`{"abi":[]}`,
			`{"contractName":"X","abi":{}}`,
			`{"contractName":1,"abi":[]}`,
			`"just a string"`,
			`42`,
			``,
		} {
			_, err := ParseDocument([]byte(data), "x.json")
			assert.ErrorIs(t, err, ErrUnsupportedDocument, data)
		}
	})

	t.Run("Should fail on malformed JSON", func(t *testing.T) {
		_, err := ParseDocument([]byte(`[{"type":`), "broken.json")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnsupportedDocument)
	})
}

func Test_ContractNameFromLabel(t *testing.T) {
	assert.Equal(t, "ERC20", ContractNameFromLabel("/a/b/ERC20.json"))
	assert.Equal(t, "Token", ContractNameFromLabel("Token.abi.json"))
	assert.Equal(t, "NoExt", ContractNameFromLabel("dir/NoExt"))
}

func Test_SignatureCollisionError(t *testing.T) {
	err := error(&SignatureCollisionError{Kind: KindFunction, Hash: "a9059cbb", Existing: "a()", Incoming: "b()", FileName: "x.json"})
	assert.True(t, IsSignatureCollision(err))
	assert.Contains(t, err.Error(), "a9059cbb")
	assert.False(t, IsSignatureCollision(ErrMissingTopic))
}

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chris-j-h/splunk-connect-for-ethereum/mocks"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/signatureTable"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func Test_ResolveChainId(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockClient := mocks.NewMockClient(ctrl)

	mockClient.EXPECT().ChainId(gomock.Any()).Return(uint64(17000), nil).Times(3)
	chainId, err := resolveChainId(ctx, mockClient, 0)
	require.NoError(t, err)
	assert.Equal(t, config.ChainId_EthereumHolesky, chainId)

	chainId, err = resolveChainId(ctx, mockClient, config.ChainId_EthereumHolesky)
	require.NoError(t, err)
	assert.Equal(t, config.ChainId_EthereumHolesky, chainId)

	_, err = resolveChainId(ctx, mockClient, config.ChainId_EthereumMainnet)
	assert.ErrorContains(t, err, "node reports chain id 17000 but 1 is configured")

	mockClient.EXPECT().ChainId(gomock.Any()).Return(uint64(0), errors.New("connection refused"))
	_, err = resolveChainId(ctx, mockClient, 0)
	assert.ErrorContains(t, err, "connection refused")
}

func Test_NewStore(t *testing.T) {
	l := zap.NewNop()

	store, err := newStore(&ethloggerConfig.StorageConfig{Type: config.StorageType_Memory}, l)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = newStore(&ethloggerConfig.StorageConfig{
		Type:         config.StorageType_Badger,
		BadgerConfig: &ethloggerConfig.BadgerConfig{Dir: t.TempDir()},
	}, l)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = newStore(&ethloggerConfig.StorageConfig{Type: "postgres"}, l)
	assert.Error(t, err)
}

func Test_ImportSignatureTables(t *testing.T) {
	ctx := context.Background()
	l := zap.NewNop()
	dir := t.TempDir()

	functions, err := signatureTable.Build(abi.KindFunction, []string{"transfer(address,uint256)"}, l)
	require.NoError(t, err)
	fnPath := filepath.Join(dir, signatureTable.FunctionTableFile)
	require.NoError(t, functions.WriteFile(fnPath))

	store := memory.NewInMemoryEthloggerStore()
	require.NoError(t, importSignatureTables(ctx, &ethloggerConfig.SignatureTablesConfig{Functions: fnPath}, store, l))

	sigs, err := store.GetSignatures(ctx, abi.KindFunction, "a9059cbb")
	require.NoError(t, err)
	assert.Equal(t, []string{"transfer(address,uint256)"}, sigs)

	count, err := store.CountSignatures(ctx, abi.KindEvent)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	err = importSignatureTables(ctx, &ethloggerConfig.SignatureTablesConfig{Events: filepath.Join(dir, "missing.gz")}, store, l)
	assert.Error(t, err)
}

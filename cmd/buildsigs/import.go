package main

import (
	"context"
	"fmt"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/logger"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/signatureTable"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage/badger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagTable = "table"
	flagKind  = "kind"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a signature table into the badger signature store",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: viper.GetBool(ethloggerConfig.Debug)})
		if err != nil {
			return err
		}

		imported, err := importTable(
			cmd.Context(),
			viper.GetString(flagTable),
			abi.Kind(viper.GetString(flagKind)),
			viper.GetString(config.KebabToSnakeCase(ethloggerConfig.StorageBadgerDir)),
			l,
		)
		if err != nil {
			return err
		}
		l.Sugar().Infow("Imported signature table", zap.Int("entries", imported))
		return nil
	},
}

func init() {
	importCmd.Flags().String(flagTable, "", "gzip signature table to import")
	importCmd.Flags().String(flagKind, string(abi.KindFunction), `"function" or "event"`)
	importCmd.Flags().String(ethloggerConfig.StorageBadgerDir, "", "badger data directory shared with ethlogger")
}

func importTable(ctx context.Context, path string, kind abi.Kind, badgerDir string, l *zap.Logger) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("--%s is required", flagTable)
	}
	if kind != abi.KindFunction && kind != abi.KindEvent {
		return 0, fmt.Errorf("unsupported signature kind %q", kind)
	}
	storageConfig := &ethloggerConfig.StorageConfig{
		Type:         config.StorageType_Badger,
		BadgerConfig: &ethloggerConfig.BadgerConfig{Dir: badgerDir},
	}
	if err := storageConfig.Validate(); err != nil {
		return 0, err
	}

	table, err := signatureTable.ReadFile(path, kind, l)
	if err != nil {
		return 0, err
	}
	store, err := badger.NewBadgerEthloggerStore(storageConfig.BadgerConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to open badger store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close storage", zap.Error(err))
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	return table.Import(ctx, store)
}

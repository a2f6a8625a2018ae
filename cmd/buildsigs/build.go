package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/logger"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/signatureTable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagFunctions = "functions"
	flagEvents    = "events"
	flagOutDir    = "out-dir"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build gzip signature tables from text files with one signature per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: viper.GetBool(ethloggerConfig.Debug)})
		if err != nil {
			return err
		}

		outDir := viper.GetString(config.KebabToSnakeCase(flagOutDir))
		inputs := map[abi.Kind]string{
			abi.KindFunction: viper.GetString(flagFunctions),
			abi.KindEvent:    viper.GetString(flagEvents),
		}
		if inputs[abi.KindFunction] == "" && inputs[abi.KindEvent] == "" {
			return fmt.Errorf("at least one of --%s or --%s is required", flagFunctions, flagEvents)
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", outDir, err)
		}

		for _, kind := range []abi.Kind{abi.KindFunction, abi.KindEvent} {
			if inputs[kind] == "" {
				continue
			}
			path, err := buildTable(kind, inputs[kind], outDir, l)
			if err != nil {
				return err
			}
			l.Sugar().Infow("Wrote signature table", zap.String("kind", string(kind)), zap.String("file", path))
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().String(flagFunctions, "", "text file of function signatures")
	buildCmd.Flags().String(flagEvents, "", "text file of event signatures")
	buildCmd.Flags().String(flagOutDir, ".", "directory the tables are written to")
}

func buildTable(kind abi.Kind, input string, outDir string, l *zap.Logger) (string, error) {
	f, err := os.Open(input)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer f.Close()

	sigs, err := signatureTable.ReadSignatureList(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", input, err)
	}
	table, err := signatureTable.Build(kind, sigs, l)
	if err != nil {
		return "", err
	}
	if collisions := table.Collisions(); len(collisions) > 0 {
		l.Sugar().Warnw("Signature table contains hash collisions",
			zap.String("kind", string(kind)),
			zap.Int("collisions", len(collisions)),
		)
	}

	path := filepath.Join(outDir, signatureTable.FileNameForKind(kind))
	if err := table.WriteFile(path); err != nil {
		return "", err
	}
	l.Sugar().Infow("Built signature table",
		zap.String("kind", string(kind)),
		zap.Int("signatures", len(sigs)),
		zap.Int("hashes", table.Len()),
	)
	return path, nil
}

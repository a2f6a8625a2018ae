package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abiRepository"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/chainPoller/EVMChainPoller"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/clients/ethereum"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/contractInfo"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/logger"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/metrics"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/output"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/shutdown"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/signatureTable"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage/badger"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/storage/memory"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/transactionLogParser"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll a chain and write decoded transactions and logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		initRunCmd(cmd)
		if Config == nil {
			Config = ethloggerConfig.NewEthloggerConfig()
		}

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: Config.Debug})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		if err := Config.Validate(); err != nil {
			return err
		}

		l.Sugar().Infow("ethlogger run")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, err := newStore(Config.Storage, l)
		if err != nil {
			return err
		}

		if err := importSignatureTables(ctx, Config.SignatureTables, store, l); err != nil {
			return err
		}

		repo := abiRepository.NewAbiRepository(&abiRepository.AbiRepositoryConfig{
			CallCandidatePolicy:    abiRepository.CallCandidatePolicy(Config.Abi.CallCandidatePolicy),
			FallbackOnHintMismatch: Config.Abi.FallbackOnHintMismatch,
			SignatureSource:        store,
		}, l)

		if Config.Abi.Dir != "" {
			loaded, err := repo.LoadDirectory(ctx, Config.Abi.Dir, &abiRepository.LoadOptions{
				Recursive:   Config.Abi.Recursive,
				FileSuffix:  Config.Abi.FileSuffix,
				Concurrency: Config.Abi.LoadConcurrency,
			})
			if err != nil {
				l.Sugar().Errorw("Failed to load ABI files", zap.String("dir", Config.Abi.Dir), zap.Error(err))
				return err
			}
			l.Sugar().Infow("Loaded ABI files",
				zap.String("dir", Config.Abi.Dir),
				zap.Int("files", loaded),
				zap.Int("signatures", repo.SignatureCount()),
				zap.Int("contracts", repo.ContractCount()),
			)
		}

		m := metrics.NewMetrics()
		m.SetRepositorySize(repo.SignatureCount(), repo.ContractCount())
		var metricsServer *http.Server
		if Config.MetricsPort > 0 {
			metricsServer = m.NewServer(Config.MetricsPort)
			go func() {
				l.Sugar().Infow("Serving metrics", zap.Int("port", Config.MetricsPort))
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					l.Sugar().Errorw("Metrics server failed", zap.Error(err))
				}
			}()
		}

		ethereumClient := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
			BaseUrl: Config.Chain.RpcUrl,
		}, l)

		if version, err := ethereumClient.ClientVersion(ctx); err != nil {
			l.Sugar().Warnw("Failed to retrieve ethereum node version", zap.Error(err))
		} else {
			l.Sugar().Infow("Retrieved ethereum node version",
				zap.String("version", version),
				zap.String("platform", string(ethereum.DetectNodePlatform(version))),
			)
		}

		chainId, err := resolveChainId(ctx, ethereumClient, Config.Chain.ChainId)
		if err != nil {
			return err
		}

		resolver, err := contractInfo.NewResolver(&contractInfo.ResolverConfig{
			CacheSize: Config.ContractCacheSize,
		}, ethereumClient, repo, l)
		if err != nil {
			return err
		}

		parser := transactionLogParser.NewTransactionLogParser(repo, resolver, m, l)
		out := output.NewOutput(Config.Output, l)

		poller := EVMChainPoller.NewEVMChainPoller(ethereumClient, store, parser, out, m, &EVMChainPoller.EVMChainPollerConfig{
			ChainId:          chainId,
			PollingInterval:  time.Duration(Config.Chain.PollingIntervalMs) * time.Millisecond,
			StartBlock:       Config.Chain.StartBlock,
			MaxBlocksPerPoll: Config.Chain.MaxBlocksPerPoll,
		}, l)

		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("failed to start chain poller: %w", err)
		}

		gracefulShutdownNotifier := shutdown.CreateGracefulShutdownChannel()
		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdownNotifier, done, func() {
			l.Sugar().Info("Shutting down...")
			cancel()
			<-poller.Done()

			if metricsServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					l.Sugar().Errorw("Failed to stop metrics server", "error", err)
				}
			}
			if err := out.Close(); err != nil {
				l.Sugar().Errorw("Failed to close output", "error", err)
			}
			ethereumClient.Close()
			if err := store.Close(); err != nil {
				l.Sugar().Errorw("Failed to close storage", "error", err)
			}
			repo.Shutdown()
		}, time.Second*5, l)
		return nil
	},
}

func init() {
	runCmd.Flags().String(ethloggerConfig.AbiDir, "", "directory of ABI files to load")
	runCmd.Flags().Bool(ethloggerConfig.AbiRecursive, true, "load ABI files from subdirectories")
	runCmd.Flags().String(ethloggerConfig.AbiFileSuffix, ethloggerConfig.DefaultAbiFileSuffix, "suffix of ABI files")
	runCmd.Flags().Int(ethloggerConfig.AbiLoadConcurrency, 0, "number of ABI files parsed at once")
	runCmd.Flags().String(ethloggerConfig.CallCandidatePolicy, config.CallCandidatePolicy_First, `candidate used for ambiguous calls: "first", "last" or "strict"`)
	runCmd.Flags().Bool(ethloggerConfig.FallbackOnHintMismatch, false, "decode calls with the candidate policy when the contract fingerprint matches no candidate")
	runCmd.Flags().String(ethloggerConfig.RpcUrl, "", "JSON-RPC endpoint of the ethereum node")
	runCmd.Flags().Uint(ethloggerConfig.ChainId, 0, "expected chain id, read from the node when unset")
	runCmd.Flags().Int(ethloggerConfig.PollingIntervalMs, ethloggerConfig.DefaultPollingIntervalMs, "interval between polls for new blocks")
	runCmd.Flags().Uint64(ethloggerConfig.StartBlock, 0, "first block to process when no checkpoint exists")
	runCmd.Flags().Int(ethloggerConfig.MaxBlocksPerPoll, ethloggerConfig.DefaultMaxBlocksPerPoll, "maximum number of blocks processed per poll")
	runCmd.Flags().String(ethloggerConfig.OutputFile, "", "file records are written to, stdout when unset")
	runCmd.Flags().Int(ethloggerConfig.OutputMaxSizeMb, ethloggerConfig.DefaultOutputMaxSizeMb, "size in megabytes at which the output file is rotated")
	runCmd.Flags().Int(ethloggerConfig.OutputMaxBackups, 0, "number of rotated output files kept, 0 keeps all")
	runCmd.Flags().Int(ethloggerConfig.MetricsPort, 0, "port serving prometheus metrics, disabled when 0")
	runCmd.Flags().Int(ethloggerConfig.ContractCacheSize, ethloggerConfig.DefaultContractCacheSize, "number of contract lookups cached")
	runCmd.Flags().String(ethloggerConfig.FunctionSignatures, "", "function signature table imported at startup")
	runCmd.Flags().String(ethloggerConfig.EventSignatures, "", "event signature table imported at startup")
	runCmd.Flags().String(ethloggerConfig.StorageType, config.StorageType_Memory, `"memory" or "badger"`)
	runCmd.Flags().String(ethloggerConfig.StorageBadgerDir, "", "badger data directory")
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}

func newStore(cfg *ethloggerConfig.StorageConfig, l *zap.Logger) (storage.EthloggerStore, error) {
	switch cfg.Type {
	case config.StorageType_Memory:
		l.Sugar().Infow("Using in-memory storage")
		return memory.NewInMemoryEthloggerStore(), nil
	case config.StorageType_Badger:
		l.Sugar().Infow("Using BadgerDB storage", zap.String("dir", cfg.BadgerConfig.Dir))
		badgerStore, err := badger.NewBadgerEthloggerStore(cfg.BadgerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger store: %w", err)
		}
		return badgerStore, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func importSignatureTables(ctx context.Context, cfg *ethloggerConfig.SignatureTablesConfig, store storage.EthloggerStore, l *zap.Logger) error {
	if cfg == nil {
		return nil
	}
	for kind, path := range map[abi.Kind]string{abi.KindFunction: cfg.Functions, abi.KindEvent: cfg.Events} {
		if path == "" {
			continue
		}
		table, err := signatureTable.ReadFile(path, kind, l)
		if err != nil {
			return fmt.Errorf("failed to read %s signature table: %w", kind, err)
		}
		imported, err := table.Import(ctx, store)
		if err != nil {
			return err
		}
		l.Sugar().Infow("Imported signature table",
			zap.String("kind", string(kind)),
			zap.String("file", path),
			zap.Int("entries", imported),
		)
	}
	return nil
}

// resolveChainId reads the chain id from the node and checks it against the configured one.
func resolveChainId(ctx context.Context, client ethereum.Client, configured config.ChainId) (config.ChainId, error) {
	remote, err := client.ChainId(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	if configured != 0 && config.ChainId(remote) != configured {
		return 0, fmt.Errorf("node reports chain id %d but %d is configured", remote, configured)
	}
	return config.ChainId(remote), nil
}

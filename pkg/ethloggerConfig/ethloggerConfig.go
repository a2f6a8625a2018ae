package ethloggerConfig

import (
	"encoding/json"
	"slices"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"
)

const (
	EnvPrefix = "ETHLOGGER_"

	Debug                  = "debug"
	AbiDir                 = "abi-dir"
	AbiRecursive           = "abi-recursive"
	AbiFileSuffix          = "abi-file-suffix"
	AbiLoadConcurrency     = "abi-load-concurrency"
	CallCandidatePolicy    = "call-candidate-policy"
	FallbackOnHintMismatch = "fallback-on-hint-mismatch"
	RpcUrl                 = "rpc-url"
	ChainId                = "chain-id"
	PollingIntervalMs      = "polling-interval-ms"
	StartBlock             = "start-block"
	MaxBlocksPerPoll       = "max-blocks-per-poll"
	OutputFile             = "output-file"
	OutputMaxSizeMb        = "output-max-size-mb"
	OutputMaxBackups       = "output-max-backups"
	MetricsPort            = "metrics-port"
	ContractCacheSize      = "contract-cache-size"
	FunctionSignatures     = "function-signatures"
	EventSignatures        = "event-signatures"
	StorageType            = "storage-type"
	StorageBadgerDir       = "storage-badger-dir"

	DefaultAbiFileSuffix     = ".json"
	DefaultPollingIntervalMs = 2000
	DefaultMaxBlocksPerPoll  = 25
	DefaultContractCacheSize = 25_000
	DefaultOutputMaxSizeMb   = 100
)

type AbiConfig struct {
	Dir                    string `json:"dir" yaml:"dir"`
	Recursive              bool   `json:"recursive" yaml:"recursive"`
	FileSuffix             string `json:"fileSuffix" yaml:"fileSuffix"`
	LoadConcurrency        int    `json:"loadConcurrency,omitempty" yaml:"loadConcurrency,omitempty"`
	CallCandidatePolicy    string `json:"callCandidatePolicy" yaml:"callCandidatePolicy"`
	FallbackOnHintMismatch bool   `json:"fallbackOnHintMismatch" yaml:"fallbackOnHintMismatch"`
}

func (ac *AbiConfig) Validate() error {
	var allErrors field.ErrorList
	if ac.FileSuffix == "" {
		ac.FileSuffix = DefaultAbiFileSuffix
	}
	if ac.CallCandidatePolicy == "" {
		ac.CallCandidatePolicy = config.CallCandidatePolicy_First
	} else if !slices.Contains([]string{config.CallCandidatePolicy_First, config.CallCandidatePolicy_Last, config.CallCandidatePolicy_Strict}, ac.CallCandidatePolicy) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("callCandidatePolicy"), ac.CallCandidatePolicy, "callCandidatePolicy must be one of [first, last, strict]"))
	}
	if ac.LoadConcurrency < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("loadConcurrency"), ac.LoadConcurrency, "loadConcurrency must not be negative"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type Chain struct {
	RpcUrl            string         `json:"rpcUrl" yaml:"rpcUrl"`
	ChainId           config.ChainId `json:"chainId" yaml:"chainId"`
	PollingIntervalMs int            `json:"pollingIntervalMs" yaml:"pollingIntervalMs"`
	StartBlock        uint64         `json:"startBlock" yaml:"startBlock"`
	MaxBlocksPerPoll  int            `json:"maxBlocksPerPoll" yaml:"maxBlocksPerPoll"`
}

func (c *Chain) Validate() error {
	var allErrors field.ErrorList
	if c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpcUrl is required"))
	}
	if c.PollingIntervalMs == 0 {
		c.PollingIntervalMs = DefaultPollingIntervalMs
	} else if c.PollingIntervalMs < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("pollingIntervalMs"), c.PollingIntervalMs, "pollingIntervalMs must be positive"))
	}
	if c.MaxBlocksPerPoll == 0 {
		c.MaxBlocksPerPoll = DefaultMaxBlocksPerPoll
	} else if c.MaxBlocksPerPoll < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxBlocksPerPoll"), c.MaxBlocksPerPoll, "maxBlocksPerPoll must be positive"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// OutputConfig selects where records are written. An empty File writes to stdout.
type OutputConfig struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMb  int    `json:"maxSizeMb,omitempty" yaml:"maxSizeMb,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// SignatureTablesConfig points at gzip signature tables imported into the signature store at startup.
type SignatureTablesConfig struct {
	Functions string `json:"functions,omitempty" yaml:"functions,omitempty"`
	Events    string `json:"events,omitempty" yaml:"events,omitempty"`
}

// StorageConfig contains configuration for the storage layer
type StorageConfig struct {
	Type         string        `json:"type" yaml:"type"` // "memory" or "badger"
	BadgerConfig *BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// BadgerConfig contains configuration for BadgerDB storage
type BadgerConfig struct {
	// Directory where BadgerDB will store its data
	Dir string `json:"dir" yaml:"dir"`
	// InMemory runs BadgerDB in memory-only mode (for testing)
	InMemory bool `json:"inMemory,omitempty" yaml:"inMemory,omitempty"`
	// ValueLogFileSize sets the maximum size of a single value log file
	ValueLogFileSize int64 `json:"valueLogFileSize,omitempty" yaml:"valueLogFileSize,omitempty"`
	// NumVersionsToKeep sets how many versions to keep for each key
	NumVersionsToKeep int `json:"numVersionsToKeep,omitempty" yaml:"numVersionsToKeep,omitempty"`
}

// Validate validates the StorageConfig
func (sc *StorageConfig) Validate() error {
	var allErrors field.ErrorList

	if sc.Type == "" {
		sc.Type = config.StorageType_Memory
	}

	if sc.Type != config.StorageType_Memory && sc.Type != config.StorageType_Badger {
		allErrors = append(allErrors, field.Invalid(field.NewPath("type"), sc.Type, "type must be 'memory' or 'badger'"))
	}

	if sc.Type == config.StorageType_Badger {
		if sc.BadgerConfig == nil {
			allErrors = append(allErrors, field.Required(field.NewPath("badger"), "badger configuration is required when type is 'badger'"))
		} else if sc.BadgerConfig.Dir == "" && !sc.BadgerConfig.InMemory {
			allErrors = append(allErrors, field.Required(field.NewPath("badger.dir"), "badger directory is required"))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type EthloggerConfig struct {
	Debug             bool                   `json:"debug" yaml:"debug"`
	Abi               *AbiConfig             `json:"abi" yaml:"abi"`
	Chain             *Chain                 `json:"chain" yaml:"chain"`
	Output            *OutputConfig          `json:"output,omitempty" yaml:"output,omitempty"`
	MetricsPort       int                    `json:"metricsPort,omitempty" yaml:"metricsPort,omitempty"`
	ContractCacheSize int                    `json:"contractCacheSize,omitempty" yaml:"contractCacheSize,omitempty"`
	SignatureTables   *SignatureTablesConfig `json:"signatureTables,omitempty" yaml:"signatureTables,omitempty"`
	Storage           *StorageConfig         `json:"storage,omitempty" yaml:"storage,omitempty"`
}

func (ec *EthloggerConfig) Validate() error {
	var allErrors field.ErrorList

	if ec.Abi == nil {
		ec.Abi = &AbiConfig{Recursive: true}
	}
	if err := ec.Abi.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("abi"), ec.Abi, err.Error()))
	}

	if ec.Chain == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("chain"), "chain is required"))
	} else if err := ec.Chain.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chain"), ec.Chain, err.Error()))
	}

	if ec.Output == nil {
		ec.Output = &OutputConfig{}
	}
	if ec.Output.MaxSizeMb < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("output.maxSizeMb"), ec.Output.MaxSizeMb, "maxSizeMb must not be negative"))
	} else if ec.Output.MaxSizeMb == 0 {
		ec.Output.MaxSizeMb = DefaultOutputMaxSizeMb
	}

	if ec.MetricsPort < 0 || ec.MetricsPort > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("metricsPort"), ec.MetricsPort, "metricsPort must be between 0 and 65535"))
	}

	if ec.ContractCacheSize == 0 {
		ec.ContractCacheSize = DefaultContractCacheSize
	} else if ec.ContractCacheSize < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("contractCacheSize"), ec.ContractCacheSize, "contractCacheSize must be positive"))
	}

	if ec.Storage == nil {
		ec.Storage = &StorageConfig{Type: config.StorageType_Memory}
	}
	if err := ec.Storage.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("storage"), ec.Storage, err.Error()))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// NewEthloggerConfig builds the configuration from flags and environment variables bound into viper.
func NewEthloggerConfig() *EthloggerConfig {
	ec := &EthloggerConfig{
		Debug: viper.GetBool(config.NormalizeFlagName(Debug)),
		Abi: &AbiConfig{
			Dir:                    viper.GetString(config.NormalizeFlagName(AbiDir)),
			Recursive:              viper.GetBool(config.NormalizeFlagName(AbiRecursive)),
			FileSuffix:             viper.GetString(config.NormalizeFlagName(AbiFileSuffix)),
			LoadConcurrency:        viper.GetInt(config.NormalizeFlagName(AbiLoadConcurrency)),
			CallCandidatePolicy:    viper.GetString(config.NormalizeFlagName(CallCandidatePolicy)),
			FallbackOnHintMismatch: viper.GetBool(config.NormalizeFlagName(FallbackOnHintMismatch)),
		},
		Chain: &Chain{
			RpcUrl:            viper.GetString(config.NormalizeFlagName(RpcUrl)),
			ChainId:           config.ChainId(viper.GetUint(config.NormalizeFlagName(ChainId))),
			PollingIntervalMs: viper.GetInt(config.NormalizeFlagName(PollingIntervalMs)),
			StartBlock:        viper.GetUint64(config.NormalizeFlagName(StartBlock)),
			MaxBlocksPerPoll:  viper.GetInt(config.NormalizeFlagName(MaxBlocksPerPoll)),
		},
		Output: &OutputConfig{
			File:       viper.GetString(config.NormalizeFlagName(OutputFile)),
			MaxSizeMb:  viper.GetInt(config.NormalizeFlagName(OutputMaxSizeMb)),
			MaxBackups: viper.GetInt(config.NormalizeFlagName(OutputMaxBackups)),
		},
		MetricsPort:       viper.GetInt(config.NormalizeFlagName(MetricsPort)),
		ContractCacheSize: viper.GetInt(config.NormalizeFlagName(ContractCacheSize)),
		SignatureTables: &SignatureTablesConfig{
			Functions: viper.GetString(config.NormalizeFlagName(FunctionSignatures)),
			Events:    viper.GetString(config.NormalizeFlagName(EventSignatures)),
		},
		Storage: &StorageConfig{
			Type: viper.GetString(config.NormalizeFlagName(StorageType)),
		},
	}
	if dir := viper.GetString(config.NormalizeFlagName(StorageBadgerDir)); dir != "" {
		ec.Storage.BadgerConfig = &BadgerConfig{Dir: dir}
	}
	return ec
}

func NewEthloggerConfigFromYamlBytes(data []byte) (*EthloggerConfig, error) {
	var ec *EthloggerConfig
	if err := yaml.Unmarshal(data, &ec); err != nil {
		return nil, err
	}
	return ec, nil
}

func NewEthloggerConfigFromJsonBytes(data []byte) (*EthloggerConfig, error) {
	var ec *EthloggerConfig
	if err := json.Unmarshal(data, &ec); err != nil {
		return nil, err
	}
	return ec, nil
}

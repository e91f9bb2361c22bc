package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/storage/dbconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the default path to the config directory.
	DefaultConfigPath = "./config"
	// DefaultMemPoolCapacity is the default unconfirmed pool size.
	DefaultMemPoolCapacity = 50000
	// DefaultMaxTimestampDrift is the default allowed timestamp lead.
	DefaultMaxTimestampDrift = 15
	// DefaultECBlockDepth is the default anti-replay block depth.
	DefaultECBlockDepth = 720
	// DefaultPrunableRetention is two weeks in seconds.
	DefaultPrunableRetention = 14 * 24 * 60 * 60
)

// Version is the version of the node, set at the build time.
var Version string

// Config top level struct representing the config
// for the node.
type Config struct {
	ProtocolConfiguration    ProtocolConfiguration    `yaml:"ProtocolConfiguration"`
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
}

// Load attempts to load the config from the given
// path for the given netMode.
func Load(path string, netMode netmode.Magic) (Config, error) {
	configPath := filepath.Join(path, fmt.Sprintf("protocol.%s.yml", netMode))
	return LoadFile(configPath)
}

// LoadFile loads config from the provided path.
func LoadFile(configPath string) (Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config '%s' doesn't exist", configPath)
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return Decode(configData)
}

// Decode unmarshals the config from the given YAML data applying defaults
// first and validating the result.
func Decode(configData []byte) (Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(configData))
	decoder.KnownFields(true)
	err := decoder.Decode(&config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	config.ProtocolConfiguration.Limits.ApplyDefaults()

	err = config.ProtocolConfiguration.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid ProtocolConfiguration: %w", err)
	}
	err = config.ApplicationConfiguration.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid ApplicationConfiguration: %w", err)
	}

	return config, nil
}

// Default returns the configuration used as a base for unmarshalling.
func Default() Config {
	return Config{
		ProtocolConfiguration: ProtocolConfiguration{
			Magic:             netmode.UnitTestNet,
			MaxTimestampDrift: DefaultMaxTimestampDrift,
			ECBlockDepth:      DefaultECBlockDepth,
			PrunableRetention: DefaultPrunableRetention,
			Limits:            limits.Default(),
		},
		ApplicationConfiguration: ApplicationConfiguration{
			LogLevel: "info",
			DBConfiguration: dbconfig.DBConfiguration{
				Type: dbconfig.InMemoryDB,
			},
			MemPool: MemPool{
				Capacity:            DefaultMemPoolCapacity,
				ExpiryInterval:      time.Second,
				RevalidateEvery:     60,
				RebroadcastInterval: 60 * time.Second,
				RebroadcastMinDwell: 30 * time.Second,
				BatchSize:           100,
				RejectedCacheSize:   10000,
			},
			Relay: Relay{
				Fanout:               3,
				SendTimeout:          5 * time.Second,
				DialTimeout:          5 * time.Second,
				Rate:                 10,
				Burst:                10,
				CompressionThreshold: 1024,
			},
		},
	}
}

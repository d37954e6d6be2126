package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zkpoe/pkg/log"
	"zkpoe/pkg/web3"
	"zkpoe/pkg/zkruntime"
)

const (
	envPrefix        = "ZKPOE"
	defaultDatadir   = ".zkpoe" // prefixed with the user's home directory
	defaultLogLevel  = "info"
	defaultLogOutput = "stderr"
)

// Config holds the application configuration.
type Config struct {
	Network    string      `mapstructure:"network"`
	Web3       Web3Config  `mapstructure:"web3"`
	Prove      ProveConfig `mapstructure:"prove"`
	Log        LogConfig   `mapstructure:"log"`
	Datadir    string      `mapstructure:"datadir"`
	Artifacts  string      `mapstructure:"artifacts"`
	Scheme     string      `mapstructure:"scheme"`
	Passphrase string      `mapstructure:"passphrase"`
}

// Web3Config holds the chain connection.
type Web3Config struct {
	RPC      string        `mapstructure:"rpc"`
	Contract string        `mapstructure:"contract"`
	PrivKey  string        `mapstructure:"privkey"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ProveConfig bounds proof generation.
type ProveConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

func defaultDatadirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultDatadir)
}

// addConfigFlags registers the global flags of every command.
func addConfigFlags(fs *flag.FlagSet) {
	fs.StringP("network", "n", web3.DefaultNetwork, fmt.Sprintf("network to use %v", web3.NetworkNames()))
	fs.String("web3.rpc", "", "web3 rpc endpoint (overrides network default)")
	fs.String("web3.contract", "", "registry contract address (overrides network default)")
	fs.StringP("web3.privkey", "k", "", "private key of the submitting account")
	fs.Duration("web3.timeout", web3.DefaultTxTimeout, "max wait for a transaction receipt")
	fs.StringP("datadir", "d", defaultDatadirPath(), "data directory for sessions and keys")
	fs.String("artifacts", "", "circuit key directory (default <datadir>/artifacts)")
	fs.String("scheme", zkruntime.SchemeGroth16, "proving scheme (groth16 or plonk)")
	fs.Duration("prove.timeout", 0, "max duration of a proof generation, 0 for no limit")
	fs.String("passphrase", "", "passphrase of salt backup files")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
}

// loadConfig merges flags, environment variables and defaults. Environment
// variables use the ZKPOE_ prefix with dots and dashes replaced by
// underscores, e.g. ZKPOE_WEB3_PRIVKEY.
func loadConfig(fs *flag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("network", web3.DefaultNetwork)
	v.SetDefault("web3.timeout", web3.DefaultTxTimeout)
	v.SetDefault("datadir", defaultDatadirPath())
	v.SetDefault("scheme", zkruntime.SchemeGroth16)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Artifacts == "" {
		cfg.Artifacts = filepath.Join(cfg.Datadir, "artifacts")
	}
	return cfg, nil
}

// validate checks the values that do not need a connection.
func (c *Config) validate() error {
	if _, err := web3.LookupNetwork(c.Network); err != nil {
		return err
	}
	if _, err := zkruntime.NewScheme(c.Scheme); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Web3.Contract != "" && !common.IsHexAddress(c.Web3.Contract) {
		return fmt.Errorf("invalid contract address %q", c.Web3.Contract)
	}
	return nil
}

// network resolves the configured network with its overrides applied.
func (c *Config) network() web3.Network {
	n, _ := web3.LookupNetwork(c.Network)
	if c.Web3.RPC != "" {
		n.RPC = c.Web3.RPC
	}
	if c.Web3.Contract != "" {
		n.Contract = common.HexToAddress(c.Web3.Contract)
	}
	return n
}

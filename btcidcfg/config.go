// nolint:lll
package btcidcfg

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog/v2"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/btcid"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightninglabs/btcid/record"
)

const (
	defaultLogLevel = "info"

	defaultNetwork = "testnet"

	defaultConfigFileName = "btcid.conf"
)

var (
	// DefaultBtcidDir is the default directory where btcid looks for its
	// configuration file.
	DefaultBtcidDir = btcutil.AppDataDir("btcid", false)

	// DefaultConfigFile is the default full path of btcid's configuration
	// file.
	DefaultConfigFile = filepath.Join(DefaultBtcidDir, defaultConfigFileName)
)

// Config is the configuration of the btcid tools.
type Config struct {
	BtcidDir   string `long:"btciddir" description:"The base directory that contains btcid's configuration file"`
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	Network string `long:"network" description:"network to create and check records for" choice:"mainnet" choice:"regtest" choice:"testnet" choice:"simnet" choice:"signet"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	PermissiveVersion bool `long:"permissiveversion" description:"Decode records with unknown versions instead of rejecting them"`
	NoCorrection      bool `long:"nocorrection" description:"Don't try to repair records whose checksum doesn't match"`

	// ActiveNetParams are the parameters of the selected network.
	ActiveNetParams *payreq.ChainParams

	// LogMgr is the manager of all sub system loggers.
	LogMgr *btcid.SubLoggerManager
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		BtcidDir:   DefaultBtcidDir,
		ConfigFile: DefaultConfigFile,
		Network:    defaultNetwork,
		DebugLevel: defaultLogLevel,
	}
}

// DecodeOptions returns the record decoding options selected by the config.
func (c *Config) DecodeOptions() []record.DecodeOption {
	var opts []record.DecodeOption
	if c.PermissiveVersion {
		opts = append(opts, record.WithVersionPolicy(
			record.VersionPermissive,
		))
	}
	if c.NoCorrection {
		opts = append(opts, record.WithChecksummer(
			&record.Hash256Checksummer{NoCorrection: true},
		))
	}

	return opts
}

// LoadConfig initializes and parses the config using a config file and the
// given command line arguments. Log output is written to handler.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the arguments to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse the arguments again and overwrite/add any specified options
func LoadConfig(args []string, handler btclog.Handler) (*Config,
	btclog.Logger, error) {

	// Pre-parse the arguments to pick up an alternative config file.
	preCfg := DefaultConfig()
	if _, err := flags.ParseArgs(&preCfg, args); err != nil {
		return nil, nil, err
	}

	// If the user specified a btcid directory but no config file, we'll
	// look for the config file within it. An explicit config file must
	// exist.
	configFileDir := CleanAndExpandPath(preCfg.BtcidDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	switch {
	case configFileDir != DefaultBtcidDir &&
		configFilePath == DefaultConfigFile:

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFileName,
		)

	case configFilePath != DefaultConfigFile:
		if !fileExists(configFilePath) {
			return nil, nil, fmt.Errorf("specified config file does "+
				"not exist in %s", configFilePath)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(configFilePath)
	if err != nil {
		// A parsing error is fatal, a missing file isn't.
		if _, ok := err.(*flags.IniError); ok {
			return nil, nil, err
		}

		configFileError = err
	}

	// Finally, parse the arguments again to ensure they take precedence.
	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.ParseArgs(args); err != nil {
		return nil, nil, err
	}

	cfg.LogMgr = btcid.NewSubLoggerManager(handler)
	btcid.SetupLoggers(cfg.LogMgr)
	cfgLogger := cfg.LogMgr.GenSubLogger(Subsystem)
	UseLogger(cfgLogger)

	cleanCfg, err := ValidateConfig(cfg, cfgLogger)
	if err != nil {
		cfgLogger.Warnf("Error validating config: %v", err)
		return nil, nil, err
	}

	// Report a missing config file only after everything else
	// succeeded.
	if configFileError != nil {
		cfgLogger.Debugf("%v", configFileError)
	}

	return cleanCfg, cfgLogger, nil
}

// ValidateConfig checks the given configuration to be sane and resolves the
// network parameters. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, cfgLogger btclog.Logger) (*Config, error) {
	mkErr := func(format string, args ...interface{}) error {
		return fmt.Errorf("ValidateConfig: "+format, args...)
	}

	cfg.BtcidDir = CleanAndExpandPath(cfg.BtcidDir)
	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)

	params, err := payreq.NetByName(cfg.Network)
	if err != nil {
		return nil, mkErr("invalid network: %v", cfg.Network)
	}
	cfg.ActiveNetParams = params

	if cfg.LogMgr == nil {
		return nil, mkErr("missing log manager")
	}

	// Parse, validate, and set debug log level(s).
	if err := cfg.LogMgr.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, mkErr("error parsing debug level: %v", err)
	}

	cfgLogger.Debugf("Using network %v, permissive versions=%v, "+
		"checksum correction=%v", cfg.ActiveNetParams.Name,
		cfg.PermissiveVersion, !cfg.NoCorrection)

	return &cfg, nil
}

// fileExists reports whether the named file or directory exists.
// This function is taken from https://github.com/btcsuite/btcd
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

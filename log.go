package btcid

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightninglabs/btcid/record"
)

// SubLoggerManager creates the loggers of all sub systems from a single
// handler and keeps track of them, so their levels can be changed later on.
type SubLoggerManager struct {
	root btclog.Logger

	mu      sync.Mutex
	loggers map[string]btclog.Logger
}

// NewSubLoggerManager creates a manager whose loggers write to handler.
func NewSubLoggerManager(handler btclog.Handler) *SubLoggerManager {
	return &SubLoggerManager{
		root:    btclog.NewSLogger(handler),
		loggers: make(map[string]btclog.Logger),
	}
}

// GenSubLogger returns the logger of a sub system, creating it if needed.
func (m *SubLoggerManager) GenSubLogger(subsystem string) btclog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystem]; ok {
		return logger
	}

	logger := m.root.SubSystem(subsystem)
	m.loggers[subsystem] = logger

	return logger
}

// SupportedSubsystems returns the sorted names of all registered sub systems.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	subsystems := make([]string, 0, len(m.loggers))
	for subsystem := range m.loggers {
		subsystems = append(subsystems, subsystem)
	}
	slices.Sort(subsystems)

	return subsystems
}

// SetLogLevels sets the level of every registered logger.
func (m *SubLoggerManager) SetLogLevels(logLevel string) error {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid log level: %v", logLevel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}

	return nil
}

// setLogLevel sets the level of a single sub system.
func (m *SubLoggerManager) setLogLevel(subsystem, logLevel string) error {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid log level: %v", logLevel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	logger, ok := m.loggers[subsystem]
	if !ok {
		return fmt.Errorf("unknown subsystem %v", subsystem)
	}
	logger.SetLevel(level)

	return nil
}

// ParseAndSetDebugLevels applies a debug level spec. The spec is either a
// single level for all sub systems, or a comma separated list of
// subsystem=level pairs.
func (m *SubLoggerManager) ParseAndSetDebugLevels(spec string) error {
	if !strings.Contains(spec, "=") {
		if strings.Contains(spec, ",") {
			return fmt.Errorf("invalid debug level spec %q, a "+
				"global level can't be combined with "+
				"subsystem levels", spec)
		}

		return m.SetLogLevels(spec)
	}

	for _, pair := range strings.Split(spec, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("invalid subsystem level pair %q, "+
				"expected subsystem=level", pair)
		}

		if err := m.setLogLevel(fields[0], fields[1]); err != nil {
			return err
		}
	}

	return nil
}

// SetupLoggers registers the loggers of all packages with the manager.
func SetupLoggers(mgr *SubLoggerManager) {
	AddSubLogger(mgr, record.Subsystem, record.UseLogger)
	AddSubLogger(mgr, keyproof.Subsystem, keyproof.UseLogger)
	AddSubLogger(mgr, keysource.Subsystem, keysource.UseLogger)
	AddSubLogger(mgr, cscript.Subsystem, cscript.UseLogger)
	AddSubLogger(mgr, payreq.Subsystem, payreq.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(mgr *SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	logger := mgr.GenSubLogger(subsystem)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

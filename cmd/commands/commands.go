package commands

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/btcid"
	"github.com/lightninglabs/btcid/btcidcfg"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/urfave/cli"
)

const (
	// Environment variables names that can be used to set the global flags.
	envVarBtcidDir   = "BTCIDCLI_BTCIDDIR"
	envVarConfigFile = "BTCIDCLI_CONFIGFILE"
	envVarNetwork    = "BTCIDCLI_NETWORK"
	envVarDebugLevel = "BTCIDCLI_DEBUGLEVEL"
)

// NewApp creates a new btcidcli app with all the available commands.
func NewApp() cli.App {
	app := cli.NewApp()
	app.Name = "btcidcli"
	app.Version = btcid.Version()
	app.Usage = "create and check BTCID key sources, scripts and " +
		"payment requests"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:      "btciddir",
			Value:     btcidcfg.DefaultBtcidDir,
			Usage:     "The path to btcid's base directory.",
			TakesFile: true,
			EnvVar:    envVarBtcidDir,
		},
		cli.StringFlag{
			Name:      "configfile",
			Usage:     "The path to btcid's configuration file.",
			TakesFile: true,
			EnvVar:    envVarConfigFile,
		},
		cli.StringFlag{
			Name: "network, n",
			Usage: "The network to create and check records for, " +
				"e.g. mainnet, testnet, etc.",
			Value:  "testnet",
			EnvVar: envVarNetwork,
		},
		cli.StringFlag{
			Name: "debuglevel",
			Usage: "The logging level for all subsystems, or " +
				"<subsystem>=<level>,... for individual ones.",
			EnvVar: envVarDebugLevel,
		},
		cli.BoolFlag{
			Name: "permissiveversion",
			Usage: "Decode records with unknown versions instead " +
				"of rejecting them.",
		},
		cli.BoolFlag{
			Name: "nocorrection",
			Usage: "Don't try to repair records whose checksum " +
				"doesn't match.",
		},
	}

	// Add all the available commands.
	app.Commands = []cli.Command{
		deriveCommand,
		applyProofCommand,
		fingerprintCommand,
	}
	app.Commands = append(app.Commands, scriptCommands...)
	app.Commands = append(app.Commands, decodeCommands...)
	app.Commands = append(app.Commands, payReqCommands...)
	app.Commands = append(app.Commands, payloadCommands...)

	return *app
}

// Fatal prints the given error and exits.
func Fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[btcidcli] %v\n", err)
	os.Exit(1)
}

// loadConfig turns the global flags into a btcid configuration. Only flags
// that were set are passed on, so the configuration file can provide the
// rest.
func loadConfig(ctx *cli.Context) (*btcidcfg.Config, error) {
	var args []string
	for _, name := range []string{
		"btciddir", "configfile", "network", "debuglevel",
	} {
		if ctx.GlobalIsSet(name) {
			args = append(args, fmt.Sprintf(
				"--%s=%s", name, ctx.GlobalString(name),
			))
		}
	}
	for _, name := range []string{"permissiveversion", "nocorrection"} {
		if ctx.GlobalBool(name) {
			args = append(args, "--"+name)
		}
	}

	cfg, _, err := btcidcfg.LoadConfig(
		args, btclog.NewDefaultHandler(os.Stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}

	return cfg, nil
}

// getContext returns a context that is canceled on SIGINT or SIGTERM.
func getContext() (context.Context, func()) {
	return signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
}

func printJSON(ctx *cli.Context, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, err = out.WriteTo(ctx.App.Writer)

	return err
}

// parseHex decodes the hex value of the named flag, which must be set.
func parseHex(ctx *cli.Context, name string) ([]byte, error) {
	if !ctx.IsSet(name) {
		return nil, fmt.Errorf("--%s must be set", name)
	}

	b, err := hex.DecodeString(ctx.String(name))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}

	return b, nil
}

// parsePubKeyFlag parses the compressed public key of the named flag.
func parsePubKeyFlag(ctx *cli.Context, name string) (*btcec.PublicKey,
	error) {

	b, err := parseHex(ctx, name)
	if err != nil {
		return nil, err
	}

	return keyproof.ParseCompressedPubKey(b)
}

// hexKey returns the hex encoded compressed serialization of a key.
func hexKey(key *btcec.PublicKey) string {
	if key == nil {
		return ""
	}

	return hex.EncodeToString(key.SerializeCompressed())
}

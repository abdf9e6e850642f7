package commands

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightninglabs/btcid/record"
	"github.com/urfave/cli"
)

const (
	pubKeysName    = "pubkeys"
	hash160Name    = "hash160"
	mName          = "m"
	noChecksumName = "nochecksum"
)

var scriptCommands = []cli.Command{
	{
		Name:      "script",
		ShortName: "s",
		Usage:     "Create constructed scripts.",
		Category:  "Scripts",
		Subcommands: []cli.Command{
			p2pkhCommand,
			p2pkCommand,
			multisigCommand,
			unsortedMultisigCommand,
		},
	},
}

var noChecksumFlag = cli.BoolFlag{
	Name:  noChecksumName,
	Usage: "don't append a checksum to the encoded script",
}

type scriptResponse struct {
	Script   string `json:"script"`
	Disasm   string `json:"disasm"`
	NumKeys  int    `json:"num_keys"`
	UseP2SH  bool   `json:"use_p2sh"`
	PkScript string `json:"root_pk_script,omitempty"`
	Address  string `json:"root_address,omitempty"`
}

// newScriptResponse describes a script filled with its root keys. Scripts
// whose key sources hold no keys are described without output script.
func newScriptResponse(script *cscript.ConstructedScript,
	params *payreq.ChainParams) (*scriptResponse, error) {

	scriptBytes, err := script.Bytes()
	if err != nil {
		return nil, err
	}

	resp := &scriptResponse{
		Script:  hex.EncodeToString(scriptBytes),
		Disasm:  script.Disasm(),
		NumKeys: script.NumKeys(),
		UseP2SH: script.UseP2SH(),
	}

	pkScript, err := script.PkScript(nil)
	switch {
	case errors.Is(err, record.ErrBadInput),
		errors.Is(err, record.ErrInvalidKey):

		return resp, nil

	case err != nil:
		return nil, err
	}
	resp.PkScript = hex.EncodeToString(pkScript)

	addr, err := script.Address(nil, params.Params)
	switch {
	// Non-standard scripts have no address.
	case errors.Is(err, record.ErrBadInput):

	case err != nil:
		return nil, err

	default:
		resp.Address = addr.EncodeAddress()
	}

	return resp, nil
}

// scriptOptions returns the script options selected by the command flags.
func scriptOptions(ctx *cli.Context) []cscript.Option {
	if ctx.Bool(noChecksumName) {
		return []cscript.Option{cscript.WithoutChecksum()}
	}

	return nil
}

// parsePubKeys decodes the hex encoded keys of the named flag.
func parsePubKeys(ctx *cli.Context, name string) ([][]byte, error) {
	keysHex := ctx.StringSlice(name)
	if len(keysHex) == 0 {
		return nil, fmt.Errorf("at least one --%s must be set", name)
	}

	pubKeys, err := fn.MapErr(keysHex, hex.DecodeString)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}

	return pubKeys, nil
}

var p2pkhCommand = cli.Command{
	Name:  "p2pkh",
	Usage: "create a pay-to-pubkey-hash script",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  pubKeyName,
			Usage: "the hex encoded root key of the script",
		},
		noChecksumFlag,
	},
	Action: newP2PKH,
}

func newP2PKH(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	pubKey, err := parseHex(ctx, pubKeyName)
	if err != nil {
		return err
	}

	script, err := cscript.StandardP2PKH(pubKey, scriptOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("unable to create script: %w", err)
	}

	resp, err := newScriptResponse(script, cfg.ActiveNetParams)
	if err != nil {
		return err
	}

	return printJSON(ctx, resp)
}

var p2pkCommand = cli.Command{
	Name:  "p2pk",
	Usage: "create a bare pay-to-pubkey script",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  pubKeyName,
			Usage: "the hex encoded root key of the script",
		},
		cli.BoolFlag{
			Name:  hash160Name,
			Usage: "insert the hash of the key instead of the key",
		},
		noChecksumFlag,
	},
	Action: newP2PK,
}

func newP2PK(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	pubKey, err := parseHex(ctx, pubKeyName)
	if err != nil {
		return err
	}

	script, err := cscript.StandardP2PK(
		pubKey, ctx.Bool(hash160Name), scriptOptions(ctx)...,
	)
	if err != nil {
		return fmt.Errorf("unable to create script: %w", err)
	}

	resp, err := newScriptResponse(script, cfg.ActiveNetParams)
	if err != nil {
		return err
	}

	return printJSON(ctx, resp)
}

var multisigFlags = []cli.Flag{
	cli.IntFlag{
		Name:  mName,
		Usage: "the number of signatures required",
	},
	cli.StringSliceFlag{
		Name:  pubKeysName,
		Usage: "a hex encoded root key, can be set multiple times",
	},
	noChecksumFlag,
}

var multisigCommand = cli.Command{
	Name:  "multisig",
	Usage: "create a sorted M-of-N multisig script",
	Description: `
	Create an M-of-N multisig script paid to through P2SH. The derived
	keys are sorted when the script is built.
	`,
	Flags:  multisigFlags,
	Action: newMultisig(cscript.StandardMultisig),
}

var unsortedMultisigCommand = cli.Command{
	Name:   "unsortedmultisig",
	Usage:  "create an M-of-N multisig script that keeps the key order",
	Flags:  multisigFlags,
	Action: newMultisig(cscript.UnsortedMultisig),
}

type multisigFactory func(int, [][]byte,
	...cscript.Option) (*cscript.ConstructedScript, error)

func newMultisig(factory multisigFactory) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		pubKeys, err := parsePubKeys(ctx, pubKeysName)
		if err != nil {
			return err
		}

		script, err := factory(
			ctx.Int(mName), pubKeys, scriptOptions(ctx)...,
		)
		if err != nil {
			return fmt.Errorf("unable to create script: %w", err)
		}

		resp, err := newScriptResponse(script, cfg.ActiveNetParams)
		if err != nil {
			return err
		}

		return printJSON(ctx, resp)
	}
}

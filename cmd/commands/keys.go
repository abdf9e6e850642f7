package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	lfn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/urfave/cli"
)

const (
	xpubName      = "xpub"
	pubKeyName    = "pubkey"
	chainCodeName = "chaincode"
	pathName      = "path"
	proofName     = "proof"
	expectedName  = "expected"

	chainCodeSize = 32
)

type deriveResponse struct {
	RootKey        string `json:"root_key"`
	Path           string `json:"path"`
	ChildKey       string `json:"child_key"`
	Proof          string `json:"proof"`
	SrcFingerprint string `json:"src_fingerprint"`
	DstFingerprint string `json:"dst_fingerprint"`
	NumMultipliers int    `json:"num_multipliers"`
}

var deriveCommand = cli.Command{
	Name:      "derive",
	ShortName: "d",
	Usage:     "derive a child public key together with its proof",
	Description: `
	Derive the public key at the given non-hardened path below a root key.
	The root key is either given as an extended key (--xpub) or as a
	compressed public key and its chain code. The returned proof links
	the child key to the root key without revealing the chain code.
	`,
	Category: "Keys",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  xpubName,
			Usage: "the BIP32 extended key to derive from",
		},
		cli.StringFlag{
			Name:  pubKeyName,
			Usage: "the hex encoded compressed root key",
		},
		cli.StringFlag{
			Name:  chainCodeName,
			Usage: "the hex encoded chain code of the root key",
		},
		cli.StringFlag{
			Name:  pathName,
			Value: "m",
			Usage: "the derivation path, e.g. m/0/1",
		},
	},
	Action: derive,
}

// parseRootKey reads the extended root key from the command flags.
func parseRootKey(ctx *cli.Context) (keyproof.ExtendedPubKey, error) {
	switch {
	case ctx.IsSet(xpubName) && ctx.IsSet(pubKeyName):
		return keyproof.ExtendedPubKey{}, fmt.Errorf("only one of "+
			"--%s and --%s can be set", xpubName, pubKeyName)

	case ctx.IsSet(xpubName):
		return keyproof.ExtendedPubKeyFromString(ctx.String(xpubName))
	}

	pubKey, err := parsePubKeyFlag(ctx, pubKeyName)
	if err != nil {
		return keyproof.ExtendedPubKey{}, err
	}

	chainCode, err := parseHex(ctx, chainCodeName)
	if err != nil {
		return keyproof.ExtendedPubKey{}, err
	}

	if len(chainCode) != chainCodeSize {
		return keyproof.ExtendedPubKey{}, fmt.Errorf("chain code "+
			"must be %d bytes, got %d", chainCodeSize,
			len(chainCode))
	}

	return keyproof.ExtendedPubKey{
		PubKey:    pubKey,
		ChainCode: fn.ToArray[[chainCodeSize]byte](chainCode),
	}, nil
}

func derive(ctx *cli.Context) error {
	if _, err := loadConfig(ctx); err != nil {
		return err
	}

	root, err := parseRootKey(ctx)
	if err != nil {
		return err
	}

	path, err := keyproof.ParsePath(ctx.String(pathName))
	if err != nil {
		return err
	}

	child, proof, err := keyproof.DeriveChildPublicKeyWithProof(
		keyproof.NewSecp256k1Engine(), root.PubKey, root.ChainCode,
		path,
	)
	if err != nil {
		return fmt.Errorf("unable to derive key: %w", err)
	}

	proofBytes, err := proof.Bytes()
	if err != nil {
		return err
	}

	src, dst := proof.SrcFingerprint(), proof.DstFingerprint()

	return printJSON(ctx, &deriveResponse{
		RootKey:        hexKey(root.PubKey),
		Path:           keyproof.FormatPath(path),
		ChildKey:       hexKey(child),
		Proof:          hex.EncodeToString(proofBytes),
		SrcFingerprint: hex.EncodeToString(src[:]),
		DstFingerprint: hex.EncodeToString(dst[:]),
		NumMultipliers: proof.NumMultipliers(),
	})
}

type applyProofResponse struct {
	RootKey    string `json:"root_key"`
	DerivedKey string `json:"derived_key"`
	Matches    bool   `json:"matches_expected"`
}

var applyProofCommand = cli.Command{
	Name:      "applyproof",
	ShortName: "a",
	Usage:     "apply a derivation proof to a root key",
	Description: `
	Replay the multipliers of a derivation proof on the root key and print
	the derived key. If --expected is set, the derived key must be equal
	to it.
	`,
	Category: "Keys",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  pubKeyName,
			Usage: "the hex encoded compressed root key",
		},
		cli.StringFlag{
			Name:  proofName,
			Usage: "the hex encoded derivation proof",
		},
		cli.StringFlag{
			Name:  expectedName,
			Usage: "the hex encoded key the proof must yield",
		},
	},
	Action: applyProof,
}

func applyProof(ctx *cli.Context) error {
	if _, err := loadConfig(ctx); err != nil {
		return err
	}

	root, err := parsePubKeyFlag(ctx, pubKeyName)
	if err != nil {
		return err
	}

	proofBytes, err := parseHex(ctx, proofName)
	if err != nil {
		return err
	}
	proof, err := keyproof.ParseMultiplierProof(proofBytes)
	if err != nil {
		return fmt.Errorf("unable to decode proof: %w", err)
	}

	expected := lfn.None[*btcec.PublicKey]()
	if ctx.IsSet(expectedName) {
		key, err := parsePubKeyFlag(ctx, expectedName)
		if err != nil {
			return err
		}
		expected = lfn.Some(key)
	}

	derived, err := keyproof.ApplyProofToRootKey(
		keyproof.NewSecp256k1Engine(), root, proof, expected,
	)
	if err != nil {
		return fmt.Errorf("unable to apply proof: %w", err)
	}

	return printJSON(ctx, &applyProofResponse{
		RootKey:    hexKey(root),
		DerivedKey: hexKey(derived),
		Matches:    expected.IsSome(),
	})
}

type fingerprintResponse struct {
	PubKey      string `json:"pubkey"`
	Fingerprint string `json:"fingerprint"`
}

var fingerprintCommand = cli.Command{
	Name:      "fingerprint",
	ShortName: "f",
	Usage:     "print the fingerprint of a public key",
	Category:  "Keys",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  pubKeyName,
			Usage: "the hex encoded public key",
		},
	},
	Action: fingerprint,
}

func fingerprint(ctx *cli.Context) error {
	keyBytes, err := parseHex(ctx, pubKeyName)
	if err != nil {
		return err
	}

	key, err := keyproof.ParsePubKey(keyBytes)
	if err != nil {
		return err
	}

	fp := keyproof.KeyFingerprint(key)

	return printJSON(ctx, &fingerprintResponse{
		PubKey:      hexKey(key),
		Fingerprint: hex.EncodeToString(fp[:]),
	})
}

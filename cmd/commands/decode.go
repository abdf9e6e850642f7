package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/lightninglabs/btcid/btcidcfg"
	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightninglabs/btcid/record"
	"github.com/urfave/cli"
)

const hexName = "hex"

var hexFlag = cli.StringFlag{
	Name:  hexName,
	Usage: "the hex encoded record to decode",
}

var decodeCommands = []cli.Command{
	{
		Name:      "decode",
		ShortName: "x",
		Usage:     "Decode serialized records.",
		Category:  "Records",
		Subcommands: []cli.Command{
			{
				Name:   "keysource",
				Usage:  "decode a public key source",
				Flags:  []cli.Flag{hexFlag},
				Action: decodeKeySource,
			},
			{
				Name:   "script",
				Usage:  "decode a constructed script",
				Flags:  []cli.Flag{hexFlag},
				Action: decodeScript,
			},
			{
				Name:   "proof",
				Usage:  "decode a key derivation proof",
				Flags:  []cli.Flag{hexFlag},
				Action: decodeProof,
			},
			{
				Name:   "scriptproof",
				Usage:  "decode the key proofs of a script",
				Flags:  []cli.Flag{hexFlag},
				Action: decodeScriptProof,
			},
			{
				Name:  "payreq",
				Usage: "decode a payment request",
				Flags: []cli.Flag{
					cli.StringFlag{
						Name: requestName,
						Usage: "the bech32m or hex " +
							"encoded request",
					},
				},
				Action: decodePayReq,
			},
		},
	},
}

type keySourceResponse struct {
	Version         uint8  `json:"version"`
	Static          bool   `json:"static"`
	Compressed      bool   `json:"compressed"`
	Hash160         bool   `json:"hash160"`
	Stealth         bool   `json:"stealth"`
	UserKey         bool   `json:"user_key"`
	ChecksumPresent bool   `json:"checksum_present"`
	External        string `json:"external,omitempty"`
	RawSource       string `json:"raw_source,omitempty"`
	Fingerprint     string `json:"fingerprint"`
}

func newKeySourceResponse(pks *keysource.PublicKeySource) keySourceResponse {
	fp := pks.Fingerprint()
	resp := keySourceResponse{
		Version:         pks.Version(),
		Static:          pks.IsStatic(),
		Compressed:      pks.UseCompressed(),
		Hash160:         pks.UseHash160(),
		Stealth:         pks.IsStealth(),
		UserKey:         pks.IsUserKey(),
		ChecksumPresent: pks.ChecksumPresent(),
		Fingerprint:     hex.EncodeToString(fp[:]),
	}

	if ref, ok := pks.External(); ok {
		resp.External = ref
	} else {
		resp.RawSource = hex.EncodeToString(pks.RawSource())
	}

	return resp
}

func decodeKeySource(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	b, err := parseHex(ctx, hexName)
	if err != nil {
		return err
	}

	pks, err := keysource.Parse(b, cfg.DecodeOptions()...)
	if err != nil {
		return fmt.Errorf("unable to decode key source: %w", err)
	}

	return printJSON(ctx, newKeySourceResponse(pks))
}

type decodedScriptResponse struct {
	scriptResponse

	Version         uint8               `json:"version"`
	Template        string              `json:"template"`
	ChecksumPresent bool                `json:"checksum_present"`
	KeySources      []keySourceResponse `json:"key_sources"`
	BundleSizes     []int               `json:"bundle_sizes"`
}

func newDecodedScriptResponse(script *cscript.ConstructedScript,
	params *payreq.ChainParams) (*decodedScriptResponse, error) {

	resp, err := newScriptResponse(script, params)
	if err != nil {
		return nil, err
	}

	return &decodedScriptResponse{
		scriptResponse:  *resp,
		Version:         script.Version(),
		Template:        hex.EncodeToString(script.Template()),
		ChecksumPresent: script.ChecksumPresent(),
		KeySources: fn.Map(
			script.PubKeySources(), newKeySourceResponse,
		),
		BundleSizes: fn.Map(script.BundleRanges(), cscript.Range.Len),
	}, nil
}

func decodeScript(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	b, err := parseHex(ctx, hexName)
	if err != nil {
		return err
	}

	script, err := cscript.Parse(b, cfg.DecodeOptions()...)
	if err != nil {
		return fmt.Errorf("unable to decode script: %w", err)
	}

	resp, err := newDecodedScriptResponse(
		script, cfg.ActiveNetParams,
	)
	if err != nil {
		return err
	}

	return printJSON(ctx, resp)
}

type proofResponse struct {
	Null           bool     `json:"null"`
	SrcFingerprint string   `json:"src_fingerprint"`
	DstFingerprint string   `json:"dst_fingerprint"`
	Multipliers    []string `json:"multipliers"`
}

func hexMultipliers(mults []keyproof.Multiplier) []string {
	return fn.Map(mults, func(m keyproof.Multiplier) string {
		return hex.EncodeToString(fn.ByteSlice(m))
	})
}

func decodeProof(ctx *cli.Context) error {
	b, err := parseHex(ctx, hexName)
	if err != nil {
		return err
	}

	proof, err := keyproof.ParseMultiplierProof(b)
	if err != nil {
		return fmt.Errorf("unable to decode proof: %w", err)
	}

	src, dst := proof.SrcFingerprint(), proof.DstFingerprint()

	return printJSON(ctx, &proofResponse{
		Null:           proof.IsNull(),
		SrcFingerprint: hex.EncodeToString(src[:]),
		DstFingerprint: hex.EncodeToString(dst[:]),
		Multipliers:    hexMultipliers(proof.Multipliers()),
	})
}

type scriptProofResponse struct {
	Version uint8      `json:"version"`
	Keys    [][]string `json:"key_multipliers"`
}

func newScriptProofResponse(
	srp *payreq.ScriptRelationshipProof) *scriptProofResponse {

	return &scriptProofResponse{
		Version: srp.Version(),
		Keys: fn.Map(
			srp.Proofs(),
			func(p *payreq.PublicKeyRelationshipProof) []string {
				return hexMultipliers(p.Multipliers())
			},
		),
	}
}

func decodeScriptProof(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	b, err := parseHex(ctx, hexName)
	if err != nil {
		return err
	}

	srp, err := payreq.ParseScriptRelationshipProof(
		b, cfg.DecodeOptions()...,
	)
	if err != nil {
		return fmt.Errorf("unable to decode script proof: %w", err)
	}

	return printJSON(ctx, newScriptProofResponse(srp))
}

type payReqEntryResponse struct {
	Name   string                 `json:"name"`
	Script *decodedScriptResponse `json:"script"`
	Proof  *scriptProofResponse   `json:"proof"`
}

type payReqResponse struct {
	Version uint8                 `json:"version"`
	Network string                `json:"network"`
	ReqSize uint64                `json:"req_size"`
	Entries []payReqEntryResponse `json:"entries"`
}

// parsePayReq decodes the request of the named flag. Requests are for the
// configured network, bech32m encoded ones must carry its HRP.
func parsePayReq(ctx *cli.Context, cfg *btcidcfg.Config,
	name string) (*payreq.PaymentRequest, *payreq.ChainParams, error) {

	if !ctx.IsSet(name) {
		return nil, nil, fmt.Errorf("--%s must be set", name)
	}
	encoded := ctx.String(name)

	if b, err := hex.DecodeString(encoded); err == nil {
		req, err := payreq.ParsePaymentRequest(
			b, cfg.DecodeOptions()...,
		)
		if err != nil {
			return nil, nil, err
		}

		return req, cfg.ActiveNetParams, nil
	}

	req, params, err := payreq.DecodeString(encoded, cfg.DecodeOptions()...)
	if err != nil {
		return nil, nil, err
	}

	if !payreq.IsForNet(params.HRP, cfg.ActiveNetParams) {
		return nil, nil, fmt.Errorf("%w: request is for %s, not %s",
			record.ErrBadInput, params.Name,
			cfg.ActiveNetParams.Name)
	}

	return req, params, nil
}

func decodePayReq(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	req, params, err := parsePayReq(ctx, cfg, requestName)
	if err != nil {
		return fmt.Errorf("unable to decode payment request: %w", err)
	}

	resp := &payReqResponse{
		Version: req.Version(),
		Network: params.Name,
		ReqSize: req.ReqSize(),
	}
	for _, entry := range req.Entries() {
		script, err := newDecodedScriptResponse(
			entry.Script, params,
		)
		if err != nil {
			return err
		}

		resp.Entries = append(resp.Entries, payReqEntryResponse{
			Name:   entry.Name,
			Script: script,
			Proof:  newScriptProofResponse(entry.Proof),
		})
	}

	return printJSON(ctx, resp)
}

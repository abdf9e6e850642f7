package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keyproof"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightninglabs/btcid/record"
	"github.com/urfave/cli"
)

const (
	entryName   = "entry"
	requestName = "request"
)

var payReqCommands = []cli.Command{
	{
		Name:      "payreq",
		ShortName: "p",
		Usage:     "Create and verify payment requests.",
		Category:  "Payment Requests",
		Subcommands: []cli.Command{
			createPayReqCommand,
			verifyPayReqCommand,
		},
	},
}

var createPayReqCommand = cli.Command{
	Name:      "create",
	ShortName: "c",
	Usage:     "create a payment request",
	Description: `
	Create a payment request for one or more recipients. Every recipient
	is given as --entry name:script:proofs, where script is the hex
	encoded constructed script and proofs is a comma separated list of
	hex encoded derivation proofs, one per key of the script. Static keys
	take an empty proof.
	`,
	Flags: []cli.Flag{
		cli.StringSliceFlag{
			Name:  entryName,
			Usage: "a recipient of the request, can be set " +
				"multiple times",
		},
	},
	Action: createPayReq,
}

// parseEntry parses a recipient given as name:script:proofs.
func parseEntry(entry string,
	opts []record.DecodeOption) (payreq.Entry, error) {

	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return payreq.Entry{}, fmt.Errorf("entry %q must be of the "+
			"form name:script:proofs", entry)
	}

	scriptBytes, err := hex.DecodeString(parts[1])
	if err != nil {
		return payreq.Entry{}, fmt.Errorf("invalid script: %w", err)
	}
	script, err := cscript.Parse(scriptBytes, opts...)
	if err != nil {
		return payreq.Entry{}, fmt.Errorf("unable to decode script: %w",
			err)
	}

	proofs, err := fn.MapErr(strings.Split(parts[2], ","), parseKeyProof)
	if err != nil {
		return payreq.Entry{}, err
	}

	srp, err := payreq.NewScriptRelationshipProof(proofs)
	if err != nil {
		return payreq.Entry{}, err
	}

	return payreq.Entry{
		Script: script,
		Name:   parts[0],
		Proof:  srp,
	}, nil
}

// parseKeyProof turns a hex encoded derivation proof into a key proof. An
// empty string stands for a key without derivation.
func parseKeyProof(proofHex string) (*payreq.PublicKeyRelationshipProof,
	error) {

	if proofHex == "" {
		return payreq.NewPublicKeyRelationshipProof(nil)
	}

	proofBytes, err := hex.DecodeString(proofHex)
	if err != nil {
		return nil, fmt.Errorf("invalid proof: %w", err)
	}

	mp, err := keyproof.ParseMultiplierProof(proofBytes)
	if err != nil {
		return nil, fmt.Errorf("unable to decode proof: %w", err)
	}

	return payreq.FromMultiplierProof(mp)
}

type createPayReqResponse struct {
	Request    string `json:"request"`
	Encoded    string `json:"encoded"`
	NumEntries int    `json:"num_entries"`
	ReqSize    uint64 `json:"req_size"`
}

func createPayReq(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	rawEntries := ctx.StringSlice(entryName)
	if len(rawEntries) == 0 {
		return fmt.Errorf("at least one --%s must be set", entryName)
	}

	entries := make([]payreq.Entry, 0, len(rawEntries))
	for _, rawEntry := range rawEntries {
		entry, err := parseEntry(rawEntry, cfg.DecodeOptions())
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	req, err := payreq.NewPaymentRequest(entries)
	if err != nil {
		return fmt.Errorf("unable to create payment request: %w", err)
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return err
	}

	encoded, err := req.EncodeString(cfg.ActiveNetParams)
	if err != nil {
		return err
	}

	return printJSON(ctx, &createPayReqResponse{
		Request:    hex.EncodeToString(reqBytes),
		Encoded:    encoded,
		NumEntries: req.NumEntries(),
		ReqSize:    req.ReqSize(),
	})
}

var verifyPayReqCommand = cli.Command{
	Name:      "verify",
	ShortName: "v",
	Usage:     "verify a payment request and print its outputs",
	Description: `
	Resolve the keys of every recipient of a payment request by applying
	its derivation proofs to the root keys of its script, and print the
	resulting output scripts and addresses.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  requestName,
			Usage: "the bech32m or hex encoded request",
		},
	},
	Action: verifyPayReq,
}

type verifiedEntryResponse struct {
	Name     string   `json:"name"`
	Keys     []string `json:"keys"`
	PkScript string   `json:"pk_script"`
	Address  string   `json:"address,omitempty"`
}

type verifyPayReqResponse struct {
	Network string                  `json:"network"`
	Entries []verifiedEntryResponse `json:"entries"`
}

func verifyPayReq(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	req, params, err := parsePayReq(ctx, cfg, requestName)
	if err != nil {
		return fmt.Errorf("unable to decode payment request: %w", err)
	}

	ctxc, cancel := getContext()
	defer cancel()

	verified, err := payreq.VerifyPaymentRequest(
		ctxc, req, keyproof.NewSecp256k1Engine(),
		payreq.WithChainParams(params),
	)
	if err != nil {
		return fmt.Errorf("unable to verify payment request: %w", err)
	}

	resp := &verifyPayReqResponse{
		Network: params.Name,
	}
	for _, entry := range verified {
		entryResp := verifiedEntryResponse{
			Name:     entry.Name,
			PkScript: hex.EncodeToString(entry.PkScript),
		}
		for _, key := range entry.Keys {
			entryResp.Keys = append(entryResp.Keys, hexKey(key))
		}
		if entry.Address != nil {
			entryResp.Address = entry.Address.EncodeAddress()
		}

		resp.Entries = append(resp.Entries, entryResp)
	}

	return printJSON(ctx, resp)
}

package commands

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lightninglabs/btcid/cscript"
	"github.com/lightninglabs/btcid/fn"
	"github.com/lightninglabs/btcid/keysource"
	"github.com/lightninglabs/btcid/payreq"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/urfave/cli"
)

const (
	keySourceName = "keysource"
	scriptName    = "script"
	lifetimeName  = "lifetime"

	defaultLifetime = 24 * time.Hour
)

var payloadCommands = []cli.Command{
	{
		Name:      "payload",
		ShortName: "l",
		Usage:     "Wrap records in signable payloads.",
		Category:  "Payment Requests",
		Subcommands: []cli.Command{
			createPayloadCommand,
			checkPayloadCommand,
		},
	},
}

var createPayloadCommand = cli.Command{
	Name:      "create",
	ShortName: "c",
	Usage:     "wrap a key source or script in a signable payload",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  keySourceName,
			Usage: "the hex encoded key source to wrap",
		},
		cli.StringFlag{
			Name:  scriptName,
			Usage: "the hex encoded constructed script to wrap",
		},
		cli.DurationFlag{
			Name:  lifetimeName,
			Value: defaultLifetime,
			Usage: "how long the payload is valid",
		},
	},
	Action: createPayload,
}

type payloadResponse struct {
	Payload    string `json:"payload"`
	Version    uint8  `json:"version"`
	Type       string `json:"type"`
	CreateDate string `json:"create_date"`
	ExpireDate string `json:"expire_date"`
	Expired    bool   `json:"expired"`

	KeySource *keySourceResponse     `json:"key_source,omitempty"`
	Script    *decodedScriptResponse `json:"script,omitempty"`
}

func newPayloadResponse(payload *payreq.SignableIDPayload,
	clk clock.Clock) (*payloadResponse, error) {

	payloadBytes, err := payload.Bytes()
	if err != nil {
		return nil, err
	}

	return &payloadResponse{
		Payload:    hex.EncodeToString(payloadBytes),
		Version:    payload.Version,
		Type:       payload.PayloadType.String(),
		CreateDate: payload.CreateDate.Format(time.RFC3339),
		ExpireDate: payload.ExpireDate.Format(time.RFC3339),
		Expired:    payload.IsExpired(clk),
	}, nil
}

func createPayload(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	var (
		clk      = clock.NewDefaultClock()
		lifetime = ctx.Duration(lifetimeName)
	)

	var payload *payreq.SignableIDPayload
	switch {
	case ctx.IsSet(keySourceName) && ctx.IsSet(scriptName):
		return fmt.Errorf("only one of --%s and --%s can be set",
			keySourceName, scriptName)

	case ctx.IsSet(keySourceName):
		b, err := parseHex(ctx, keySourceName)
		if err != nil {
			return err
		}

		pks, err := keysource.Parse(b, cfg.DecodeOptions()...)
		if err != nil {
			return fmt.Errorf("unable to decode key source: %w",
				err)
		}

		payload, err = payreq.NewKeySourcePayload(clk, lifetime, pks)
		if err != nil {
			return err
		}

	default:
		b, err := parseHex(ctx, scriptName)
		if err != nil {
			return err
		}

		script, err := cscript.Parse(b, cfg.DecodeOptions()...)
		if err != nil {
			return fmt.Errorf("unable to decode script: %w", err)
		}

		payload, err = payreq.NewScriptPayload(clk, lifetime, script)
		if err != nil {
			return err
		}
	}

	resp, err := newPayloadResponse(payload, clk)
	if err != nil {
		return err
	}

	return printJSON(ctx, resp)
}

var checkPayloadCommand = cli.Command{
	Name:      "check",
	ShortName: "k",
	Usage:     "decode a signable payload and check its expiry",
	Flags:     []cli.Flag{hexFlag},
	Action:    checkPayload,
}

func checkPayload(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	b, err := parseHex(ctx, hexName)
	if err != nil {
		return err
	}

	opts := cfg.DecodeOptions()
	payload, err := payreq.DecodeSignableIDPayload(b, opts...)
	switch {
	case fn.ErrorAs[payreq.ErrUnknownType](err):
		return fmt.Errorf("payload needs a newer version of %s: %w",
			ctx.App.Name, err)

	case err != nil:
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	resp, err := newPayloadResponse(payload, clock.NewDefaultClock())
	if err != nil {
		return err
	}

	switch payload.PayloadType {
	case payreq.PayloadKeySource:
		pks, err := payload.KeySource(opts...)
		if err != nil {
			return err
		}

		pksResp := newKeySourceResponse(pks)
		resp.KeySource = &pksResp

	case payreq.PayloadConstructedScript:
		script, err := payload.ConstructedScript(opts...)
		if err != nil {
			return err
		}

		resp.Script, err = newDecodedScriptResponse(
			script, cfg.ActiveNetParams,
		)
		if err != nil {
			return err
		}
	}

	return printJSON(ctx, resp)
}

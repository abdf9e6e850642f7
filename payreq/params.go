package payreq

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Human-readable prefixes of bech32m encoded payment requests for each
// network.
const (
	Bech32HRPMainnet       = "btcidbc"
	Bech32HRPTestnet       = "btcidtb"
	Bech32HRPRegressionnet = "btcidrt"
	Bech32HRPSignet        = "btcidsg"
	Bech32HRPSimnet        = "btcidsb"
)

var (
	// ErrUnsupportedHRP is returned when a payment request string carries
	// an HRP of an unknown network.
	ErrUnsupportedHRP = errors.New("payreq: unsupported HRP value")

	// ErrUnknownNetwork is returned when a network name can't be mapped
	// to a set of chain parameters.
	ErrUnknownNetwork = errors.New("payreq: unknown network")
)

// ChainParams defines a network by its chaincfg parameters and the HRP used
// for payment requests on it.
type ChainParams struct {
	*chaincfg.Params
	HRP string
}

var (
	// Set of all supported prefixes of bech32m encoded payment requests.
	bech32Prefixes = make(map[string]struct{})

	MainNetParams = ChainParams{
		&chaincfg.MainNetParams, Bech32HRPMainnet,
	}
	TestNet3Params = ChainParams{
		&chaincfg.TestNet3Params, Bech32HRPTestnet,
	}
	RegressionNetParams = ChainParams{
		&chaincfg.RegressionNetParams, Bech32HRPRegressionnet,
	}
	SigNetParams = ChainParams{&chaincfg.SigNetParams, Bech32HRPSignet}
	SimNetParams = ChainParams{&chaincfg.SimNetParams, Bech32HRPSimnet}
)

// IsBech32MPrefix returns whether the prefix (HRP plus separator) is known
// on any supported network.
func IsBech32MPrefix(prefix string) bool {
	prefix = strings.ToLower(prefix)
	_, ok := bech32Prefixes[prefix]
	return ok
}

// IsForNet returns whether or not the HRP is associated with the passed
// network.
func IsForNet(hrp string, net *ChainParams) bool {
	return hrp == net.HRP
}

// Net returns the ChainParams associated with a payment request HRP.
func Net(hrp string) (*ChainParams, error) {
	switch hrp {
	case MainNetParams.HRP:
		return &MainNetParams, nil
	case TestNet3Params.HRP:
		return &TestNet3Params, nil
	case RegressionNetParams.HRP:
		return &RegressionNetParams, nil
	case SigNetParams.HRP:
		return &SigNetParams, nil
	case SimNetParams.HRP:
		return &SimNetParams, nil
	default:
		return nil, ErrUnsupportedHRP
	}
}

// NetByName returns the ChainParams for a network name as used on the
// command line.
func NetByName(name string) (*ChainParams, error) {
	switch name {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet", "testnet3":
		return &TestNet3Params, nil
	case "regtest":
		return &RegressionNetParams, nil
	case "signet":
		return &SigNetParams, nil
	case "simnet":
		return &SimNetParams, nil
	default:
		return nil, ErrUnknownNetwork
	}
}

func init() {
	for _, params := range []ChainParams{
		MainNetParams, TestNet3Params, RegressionNetParams,
		SigNetParams, SimNetParams,
	} {
		bech32Prefixes[params.HRP+"1"] = struct{}{}
	}
}

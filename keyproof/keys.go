package keyproof

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightninglabs/btcid/record"
)

// PubKeyBytesLenUncompressed is the length of a serialized uncompressed
// public key.
const PubKeyBytesLenUncompressed = 65

// ParseCompressedPubKey parses a 33-byte compressed public key.
func ParseCompressedPubKey(b []byte) (*btcec.PublicKey, error) {
	if len(b) != btcec.PubKeyBytesLenCompressed ||
		(b[0] != 0x02 && b[0] != 0x03) {

		return nil, fmt.Errorf("%w: expected 33 byte compressed key, "+
			"got %d bytes", record.ErrInvalidKey, len(b))
	}

	return ParsePubKey(b)
}

// ParsePubKey parses a compressed or uncompressed public key.
func ParsePubKey(b []byte) (*btcec.PublicKey, error) {
	switch len(b) {
	case btcec.PubKeyBytesLenCompressed, PubKeyBytesLenUncompressed:
	default:
		return nil, fmt.Errorf("%w: invalid key length %d",
			record.ErrInvalidKey, len(b))
	}

	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrInvalidKey, err)
	}

	return key, nil
}

// ExtendedPubKeyFromString parses a base58 encoded BIP32 extended key. A
// private extended key is neutered first, only its public half is returned.
func ExtendedPubKeyFromString(key string) (ExtendedPubKey, error) {
	extKey, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return ExtendedPubKey{}, fmt.Errorf("%w: unable to parse "+
			"extended key: %v", record.ErrInvalidKey, err)
	}

	if extKey.IsPrivate() {
		extKey, err = extKey.Neuter()
		if err != nil {
			return ExtendedPubKey{}, fmt.Errorf("%w: %v",
				record.ErrInvalidKey, err)
		}
	}

	pubKey, err := extKey.ECPubKey()
	if err != nil {
		return ExtendedPubKey{}, fmt.Errorf("%w: %v",
			record.ErrInvalidKey, err)
	}

	result := ExtendedPubKey{
		PubKey: pubKey,
	}
	copy(result.ChainCode[:], extKey.ChainCode())

	return result, nil
}

// ParsePath parses a derivation path such as "m/0/1/2". Hardened elements
// aren't accepted since they can't be derived from public keys.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	elems := strings.Split(path, "/")
	indices := make([]uint32, 0, len(elems))
	for _, elem := range elems {
		if strings.HasSuffix(elem, "'") || strings.HasSuffix(elem, "h") {
			return nil, fmt.Errorf("%w: hardened path element %q",
				record.ErrDerivation, elem)
		}

		index, err := strconv.ParseUint(elem, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid path element %q",
				record.ErrBadInput, elem)
		}
		if index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: path element %d is hardened",
				record.ErrDerivation, index)
		}

		indices = append(indices, uint32(index))
	}

	return indices, nil
}

// FormatPath renders a path of indices in the m/a/b/c notation.
func FormatPath(path []uint32) string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, index := range path {
		sb.WriteString("/")
		if index >= hdkeychain.HardenedKeyStart {
			sb.WriteString(strconv.FormatUint(
				uint64(index-hdkeychain.HardenedKeyStart), 10,
			))
			sb.WriteString("'")
			continue
		}
		sb.WriteString(strconv.FormatUint(uint64(index), 10))
	}

	return sb.String()
}

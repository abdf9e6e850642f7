package record

import "fmt"

// VersionPolicy decides what happens when a decoded record carries a version
// other than the supported one.
type VersionPolicy uint8

const (
	// VersionStrict rejects records with an unknown version.
	VersionStrict VersionPolicy = iota

	// VersionPermissive logs a warning and decodes the record anyway.
	VersionPermissive
)

// String returns a human readable name of the policy.
func (p VersionPolicy) String() string {
	switch p {
	case VersionStrict:
		return "strict"
	case VersionPermissive:
		return "permissive"
	default:
		return fmt.Sprintf("<unknown(%d)>", uint8(p))
	}
}

// CheckVersion applies the policy to a decoded version.
func CheckVersion(p VersionPolicy, recordName string, got, want uint8) error {
	if got == want {
		return nil
	}

	if p == VersionPermissive {
		log.Warnf("Decoding %s record with version %d, supported "+
			"version is %d", recordName, got, want)
		return nil
	}

	return fmt.Errorf("%w: %s version %d, supported version is %d",
		ErrVersion, recordName, got, want)
}

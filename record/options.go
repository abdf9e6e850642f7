package record

// DecodeOptions holds the options shared by all record decoders.
type DecodeOptions struct {
	// VersionPolicy decides how unknown record versions are handled.
	VersionPolicy VersionPolicy

	// Checksummer verifies and repairs checksummed records.
	Checksummer Checksummer
}

// DecodeOption is a functional option that modifies DecodeOptions.
type DecodeOption func(*DecodeOptions)

// DefaultDecodeOptions returns the default decode options: strict version
// checks and the double SHA-256 checksummer.
func DefaultDecodeOptions() *DecodeOptions {
	return &DecodeOptions{
		VersionPolicy: VersionStrict,
		Checksummer:   DefaultChecksummer,
	}
}

// WithVersionPolicy sets the version policy.
func WithVersionPolicy(p VersionPolicy) DecodeOption {
	return func(o *DecodeOptions) {
		o.VersionPolicy = p
	}
}

// WithChecksummer sets the checksum collaborator.
func WithChecksummer(cs Checksummer) DecodeOption {
	return func(o *DecodeOptions) {
		o.Checksummer = cs
	}
}

// ApplyDecodeOptions returns the default options with opts applied.
func ApplyDecodeOptions(opts ...DecodeOption) *DecodeOptions {
	o := DefaultDecodeOptions()
	for _, opt := range opts {
		opt(o)
	}

	return o
}

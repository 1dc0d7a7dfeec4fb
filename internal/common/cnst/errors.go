package cnst

import "errors"

var (
	// ErrUnsupportedStoreType is returned when the configured store type is unknown
	ErrUnsupportedStoreType = errors.New("unsupported store type")
	// ErrUnsupportedCodec is returned when the configured payload codec is unknown
	ErrUnsupportedCodec = errors.New("unsupported codec")
	// ErrUnknownAttribute is returned when a provider attribute is not recognized
	ErrUnknownAttribute = errors.New("unknown provider attribute")
	// ErrMissingAttribute is returned when a required provider attribute is absent
	ErrMissingAttribute = errors.New("missing provider attribute")
)

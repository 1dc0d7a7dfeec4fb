package session

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/goccy/go-json"
)

// Codec converts the item collection to and from its stored form
type Codec interface {
	Name() cnst.CodecName
	Encode(items *Items) ([]byte, error)
	// Decode returns an error wrapping ErrCorruptPayload when data is malformed
	Decode(data []byte) (*Items, error)
}

var codecs = map[cnst.CodecName]func() Codec{
	cnst.CodecJSON: func() Codec { return jsonCodec{} },
	cnst.CodecGzip: func() Codec { return gzipCodec{} },
}

// NewCodec returns the codec registered under name
func NewCodec(name string) (Codec, error) {
	ctor, ok := codecs[cnst.CodecName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedCodec, name)
	}
	return ctor(), nil
}

type jsonCodec struct{}

func (jsonCodec) Name() cnst.CodecName { return cnst.CodecJSON }

func (jsonCodec) Encode(items *Items) ([]byte, error) {
	if items == nil {
		items = NewItems()
	}
	return json.Marshal(items)
}

func (jsonCodec) Decode(data []byte) (*Items, error) {
	items := NewItems()
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return items, nil
}

type gzipCodec struct{}

func (gzipCodec) Name() cnst.CodecName { return cnst.CodecGzip }

func (gzipCodec) Encode(items *Items) ([]byte, error) {
	raw, err := jsonCodec{}.Encode(items)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(data []byte) (*Items, error) {
	if len(data) == 0 {
		return NewItems(), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return jsonCodec{}.Decode(raw)
}

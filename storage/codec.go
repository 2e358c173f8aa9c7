package storage

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/albertocavalcante/go-modrt/resource"
)

// encMode uses Core Deterministic Encoding: sorted map keys, smallest
// integer encoding, no indefinite-length items.
var encMode cbor.EncMode

var decMode cbor.DecMode

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

// contentDomainKey is the BLAKE3 key for content digests: the ASCII domain
// name zero-padded to 32 bytes.
var contentDomainKey = [32]byte{
	'm', 'o', 'd', 'r', 't', '.', 's', 't', 'o', 'r', 'a', 'g', 'e', '.',
	'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

func unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// digest returns the hex keyed BLAKE3 digest of data.
func digest(data []byte) string {
	h, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("storage: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// packContent encodes every entry of c into one deterministic archive and
// compresses it. The digest is taken over the uncompressed archive.
func packContent(c resource.Content) (packed []byte, sum string, err error) {
	entries := map[string][]byte{}
	if c != nil {
		for _, name := range c.Entries() {
			data, err := c.ReadFile(name)
			if err != nil {
				return nil, "", fmt.Errorf("reading %s: %w", name, err)
			}
			entries[name] = data
		}
	}
	raw, err := marshal(entries)
	if err != nil {
		return nil, "", fmt.Errorf("encoding content: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), digest(raw), nil
}

// unpackContent reverses packContent and verifies the digest.
func unpackContent(packed []byte, want string) (resource.MapContent, error) {
	raw, err := zstdDecoder.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if got := digest(raw); got != want {
		return nil, fmt.Errorf("content digest mismatch: got %s, want %s", got, want)
	}
	var entries map[string][]byte
	if err := unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}
	return resource.MapContent(entries), nil
}

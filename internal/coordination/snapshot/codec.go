// Package snapshot encodes projection state into the opaque blobs the
// repository stores. A blob is a fixed header followed by a Core
// Deterministic CBOR body, optionally compressed:
//
//	magic "IMPS" | version (1) | compression (1) | body size (4, big endian)
//	| blake3 digest of the uncompressed body (32) | body
//
// Identical states always encode to identical bodies, so the digest doubles
// as a state fingerprint.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/impel-dev/impel/internal/coordination/projection"
)

const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 4 + digestSize
	digestSize    = 32
)

var magic = [4]byte{'I', 'M', 'P', 'S'}

// ErrCorrupt is returned when a blob fails header or digest verification.
var ErrCorrupt = errors.New("snapshot corrupt")

// digestKey separates snapshot digests from agent token digests.
var digestKey = [32]byte{
	'i', 'm', 'p', 'e', 'l', '.', 's', 'n', 'a', 'p', 's', 'h', 'o', 't',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Keep nanoseconds; the default encodes whole Unix seconds.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes state and compresses the body with tag. Bodies that do
// not shrink are stored uncompressed.
func Encode(state *projection.State, tag CompressionTag) ([]byte, error) {
	body, err := encMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("encode snapshot: body of %d bytes exceeds format limit", len(body))
	}

	packed, err := compress(body, tag)
	if errors.Is(err, errIncompressible) {
		packed, tag = body, CompressionNone
	} else if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	sum := digest(body)
	out := make([]byte, 0, headerSize+len(packed))
	out = append(out, magic[:]...)
	out = append(out, formatVersion, byte(tag))
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, sum[:]...)
	return append(out, packed...), nil
}

// Decode verifies and decodes a blob produced by Encode.
func Decode(blob []byte) (*projection.State, error) {
	body, err := unpack(blob)
	if err != nil {
		return nil, err
	}
	var state projection.State
	if err := decMode.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	state.Normalize()
	return &state, nil
}

// Fingerprint returns the hex digest of the deterministic encoding of state.
// Two states have equal fingerprints exactly when they encode identically.
func Fingerprint(state *projection.State) (string, error) {
	body, err := encMode.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("fingerprint state: %w", err)
	}
	sum := digest(body)
	return fmt.Sprintf("%x", sum[:]), nil
}

// Compression reports the compression tag recorded in a blob header.
func Compression(blob []byte) (CompressionTag, error) {
	if err := checkHeader(blob); err != nil {
		return 0, err
	}
	return CompressionTag(blob[5]), nil
}

func unpack(blob []byte) ([]byte, error) {
	if err := checkHeader(blob); err != nil {
		return nil, err
	}
	tag := CompressionTag(blob[5])
	size := int(binary.BigEndian.Uint32(blob[6:10]))
	want := blob[10:headerSize]

	body, err := decompress(blob[headerSize:], tag, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	got := digest(body)
	if !bytes.Equal(got[:], want) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return body, nil
}

func checkHeader(blob []byte) error {
	if len(blob) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(blob))
	}
	if !bytes.Equal(blob[:4], magic[:]) {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if blob[4] != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, blob[4])
	}
	return nil
}

func digest(body []byte) [digestSize]byte {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: blake3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(body)
	var sum [digestSize]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

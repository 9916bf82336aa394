package engine

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/klauspost/compress/zlib"
)

// EncodeBatchInput produces the persisted batch guest input form: base64(zlib(rlp(input))).
// BatchProof requests accept this string back under the "batch_guest_input" prover arg.
func EncodeBatchInput(input GuestBatchInput) (string, error) {
	raw, err := rlp.EncodeToBytes(&input)
	if err != nil {
		return "", fmt.Errorf("serialize batch input: %w", err)
	}
	compressed, err := zlibCompress(raw)
	if err != nil {
		return "", fmt.Errorf("compress batch input: %w", err)
	}
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// MaxBatchInputSize caps the decompressed size of a batch guest input.
const MaxBatchInputSize = 256 << 20

// ErrBatchInputTooLarge is returned when a batch guest input inflates past its limit.
var ErrBatchInputTooLarge = errors.New("batch input too large")

// DecodeBatchInput reverses EncodeBatchInput, rejecting inputs that inflate past
// MaxBatchInputSize.
func DecodeBatchInput(encoded string) (GuestBatchInput, error) {
	return decodeBatchInput(encoded, MaxBatchInputSize)
}

func decodeBatchInput(encoded string, limit int64) (GuestBatchInput, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return GuestBatchInput{}, fmt.Errorf("decode batch input base64: %w", err)
	}
	raw, err := zlibDecompress(compressed, limit)
	if err != nil {
		return GuestBatchInput{}, fmt.Errorf("decompress batch input: %w", err)
	}
	var input GuestBatchInput
	if err := rlp.DecodeBytes(raw, &input); err != nil {
		return GuestBatchInput{}, fmt.Errorf("deserialize batch input: %w", err)
	}
	return input, nil
}

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zlibDecompress(data []byte, limit int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBatchInputTooLarge, limit)
	}
	return raw, nil
}

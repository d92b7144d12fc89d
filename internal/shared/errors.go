// Package shared contains canonical type definitions shared across embedstore.
package shared //nolint:revive // internal shared package is intentional

import (
	"errors"
	"fmt"
)

// Semantic errors for embedding store operations.
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("embedstore: entry not found")

	// ErrUnsupported indicates the provider does not implement the requested capability.
	ErrUnsupported = errors.New("embedstore: operation not supported by provider")

	// ErrInvalidInput indicates a precondition violation. Store state is unchanged.
	ErrInvalidInput = errors.New("embedstore: invalid input")

	// ErrBackend indicates a failure of the underlying storage medium.
	ErrBackend = errors.New("embedstore: backend failure")

	// ErrEncode indicates the embedded payload could not be encoded.
	ErrEncode = errors.New("embedstore: encode failed")

	// ErrDecode indicates a stored payload could not be decoded.
	ErrDecode = errors.New("embedstore: decode failed")
)

// Precondition violations. Each wraps ErrInvalidInput.
var (
	// ErrBlankID indicates an explicit id was empty or whitespace.
	ErrBlankID = fmt.Errorf("%w: blank id", ErrInvalidInput)

	// ErrEmptyEmbedding indicates an embedding with no dimensions.
	ErrEmptyEmbedding = fmt.Errorf("%w: empty embedding", ErrInvalidInput)

	// ErrBatchLength indicates parallel batch inputs of different lengths.
	ErrBatchLength = fmt.Errorf("%w: batch length mismatch", ErrInvalidInput)

	// ErrScoreRange indicates a minimum score outside [0, 1].
	ErrScoreRange = fmt.Errorf("%w: min score out of range", ErrInvalidInput)

	// ErrDimensionMismatch indicates embeddings of different dimensions were compared or stored.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrInvalidInput)
)

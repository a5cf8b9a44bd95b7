// Package adapter turns positional contract values into model records. Every
// decoder validates field count and type and returns a *DecodeError instead
// of trusting the shape.
package adapter

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownRole = errors.New("unrecognized role identifier")
	ErrOutOfRange  = errors.New("enum value out of range")
	ErrMalformed   = errors.New("malformed value")
	ErrShape       = errors.New("unexpected record shape")
)

// DecodeError tags a record that could not be decoded.
type DecodeError struct {
	Record string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("decode %s.%s: %v", e.Record, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeFailure marks the error for ledger.Classify.
func (e *DecodeError) DecodeFailure() bool { return true }

// Reason is a short label for metrics.
func (e *DecodeError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(e.Err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(e.Err, ErrShape):
		return "shape"
	default:
		return "malformed"
	}
}

// OnDrop is told about each list entry skipped because it failed to decode.
type OnDrop func(err *DecodeError)

func decodeList[T any](raw any, record string, decode func(any) (T, error), onDrop OnDrop) ([]T, error) {
	items, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return []T{}, nil
		}
		return nil, &DecodeError{Record: record + " list", Err: fmt.Errorf("%w: got %T", ErrShape, raw)}
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := decode(item)
		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				return nil, err
			}
			metrics.DecodeDropsTotal.WithLabelValues(record, de.Reason()).Inc()
			if onDrop != nil {
				onDrop(de)
			}
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// fields asserts raw is a tuple of exactly n values.
func fields(raw any, record string, n int) ([]any, error) {
	tuple, ok := raw.([]any)
	if !ok {
		return nil, &DecodeError{Record: record, Err: fmt.Errorf("%w: got %T", ErrShape, raw)}
	}
	if len(tuple) != n {
		return nil, &DecodeError{Record: record, Err: fmt.Errorf("%w: %d fields, want %d", ErrShape, len(tuple), n)}
	}
	return tuple, nil
}

func malformed(record, field string, v any) error {
	return &DecodeError{Record: record, Field: field, Err: fmt.Errorf("%w: %T %v", ErrMalformed, v, v)}
}

func address(record, field string, v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if common.IsHexAddress(a) {
			return common.HexToAddress(a), nil
		}
	}
	return common.Address{}, malformed(record, field, v)
}

func bytes32(record, field string, v any) (common.Hash, error) {
	switch h := v.(type) {
	case [32]byte:
		return common.Hash(h), nil
	case common.Hash:
		return h, nil
	case string:
		if len(h) == 66 && strings.HasPrefix(h, "0x") {
			return common.HexToHash(h), nil
		}
	}
	return common.Hash{}, malformed(record, field, v)
}

func text(record, field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", malformed(record, field, v)
	}
	return s, nil
}

// quantity coerces the numeric encodings a contract value can arrive in to
// uint64. Negative, fractional, or oversize values are decode errors.
func quantity(record, field string, v any) (uint64, error) {
	switch n := v.(type) {
	case *big.Int:
		if n != nil && n.Sign() >= 0 && n.IsUint64() {
			return n.Uint64(), nil
		}
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	case string:
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(n), 0)
		if ok && parsed.Sign() >= 0 && parsed.IsUint64() {
			return parsed.Uint64(), nil
		}
	}
	return 0, malformed(record, field, v)
}

func timestamp(record, field string, v any) (time.Time, error) {
	sec, err := quantity(record, field, v)
	if err != nil {
		return time.Time{}, err
	}
	if sec > math.MaxInt64 {
		return time.Time{}, malformed(record, field, v)
	}
	return model.FromUnixSeconds(sec), nil
}

// enum decodes a small on-chain enum and checks it against valid.
func enum(record, field string, v any, valid func(uint8) bool) (uint8, error) {
	n, err := quantity(record, field, v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint8 || !valid(uint8(n)) {
		return 0, &DecodeError{Record: record, Field: field, Err: fmt.Errorf("%w: %d", ErrOutOfRange, n)}
	}
	return uint8(n), nil
}

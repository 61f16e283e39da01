package anon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TokenKind is the JSON kind of one wire token.
type TokenKind string

const (
	TokenNull   TokenKind = "null"
	TokenString TokenKind = "string"
	TokenNumber TokenKind = "number"
	TokenBool   TokenKind = "boolean"
	TokenArray  TokenKind = "array"
	TokenObject TokenKind = "object"
	TokenEnd    TokenKind = "end of row"
	TokenAny    TokenKind = "any"
	tokenBad    TokenKind = "invalid"
)

// SuppressedToken is the literal the backend sends in place of a withheld value.
const SuppressedToken = "*"

// MalformedRowError reports a wire row that does not match the decoder's
// expectations. It always indicates a protocol or schema mismatch.
type MalformedRowError struct {
	Index    int
	Expected TokenKind
	Actual   TokenKind
	Detail   string
}

func (e *MalformedRowError) Error() string {
	msg := fmt.Sprintf("malformed row: token %d: expected %s, got %s", e.Index, e.Expected, e.Actual)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// KindOf classifies a raw JSON token by its first significant byte.
func KindOf(raw json.RawMessage) TokenKind {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return tokenBad
	}
	switch c := b[0]; {
	case c == 'n':
		return TokenNull
	case c == '"':
		return TokenString
	case c == 't' || c == 'f':
		return TokenBool
	case c == '[':
		return TokenArray
	case c == '{':
		return TokenObject
	case c == '-' || (c >= '0' && c <= '9'):
		return TokenNumber
	}
	return tokenBad
}

// Parser turns one non-null, non-suppressed token into a typed value.
// It returns the kind it expected when the token does not fit.
type Parser[T any] func(raw json.RawMessage) (T, TokenKind, error)

// RowReader walks the tokens of a single result row.
type RowReader struct {
	tokens []json.RawMessage
	pos    int
}

// NewRowReader wraps the tokens of one row.
func NewRowReader(tokens []json.RawMessage) *RowReader {
	return &RowReader{tokens: tokens}
}

// Pos returns the index of the next token.
func (r *RowReader) Pos() int { return r.pos }

// Len returns the number of tokens in the row.
func (r *RowReader) Len() int { return len(r.tokens) }

// Done reports whether every token was consumed.
func (r *RowReader) Done() bool { return r.pos >= len(r.tokens) }

// Next consumes and returns the next raw token.
func (r *RowReader) Next(expected TokenKind) (json.RawMessage, error) {
	if r.pos >= len(r.tokens) {
		return nil, &MalformedRowError{Index: r.pos, Expected: expected, Actual: TokenEnd}
	}
	tok := r.tokens[r.pos]
	r.pos++
	return tok, nil
}

// Skip consumes one token without decoding it.
func (r *RowReader) Skip() error {
	_, err := r.Next(TokenAny)
	return err
}

// ReadValue decodes the next token as an anonymized value: "*" is Suppressed,
// null is Null, anything else goes through parse.
func ReadValue[T any](r *RowReader, parse Parser[T]) (Value[T], error) {
	idx := r.pos
	tok, err := r.Next(TokenAny)
	if err != nil {
		return Value[T]{}, err
	}
	switch KindOf(tok) {
	case TokenNull:
		return Null[T](), nil
	case TokenString:
		if bytes.Equal(bytes.TrimSpace(tok), []byte(`"`+SuppressedToken+`"`)) {
			return Suppressed[T](), nil
		}
	}
	v, expected, err := parse(tok)
	if err != nil {
		return Value[T]{}, &MalformedRowError{Index: idx, Expected: expected, Actual: KindOf(tok), Detail: err.Error()}
	}
	return Data(v), nil
}

// ReadRequired decodes the next token and fails unless it holds a value.
func ReadRequired[T any](r *RowReader, parse Parser[T]) (T, error) {
	idx := r.pos
	v, err := ReadValue(r, parse)
	if err != nil {
		var zero T
		return zero, err
	}
	if !v.HasValue() {
		var zero T
		actual := TokenNull
		if v.IsSuppressed() {
			actual = TokenString
		}
		_, expected, _ := parse(nil)
		return zero, &MalformedRowError{Index: idx, Expected: expected, Actual: actual, Detail: "value required, got " + v.Kind().String()}
	}
	return v.MustGet(), nil
}

// ReadNoisyCount decodes a (count, count_noise) column pair.
func ReadNoisyCount(r *RowReader) (NoisyCount, error) {
	count, err := ReadRequired(r, ParseInt64)
	if err != nil {
		return NoisyCount{}, err
	}
	noise, err := ReadValue(r, ParseFloat64)
	if err != nil {
		return NoisyCount{}, err
	}
	return NewNoisyCount(count, noise.Or(0)), nil
}

var errKind = fmt.Errorf("unexpected token kind")

func ParseInt64(raw json.RawMessage) (int64, TokenKind, error) {
	if KindOf(raw) != TokenNumber {
		return 0, TokenNumber, errKind
	}
	s := string(bytes.TrimSpace(raw))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, TokenNumber, nil
	}
	// Integral values are sometimes rendered as 42.0.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, TokenNumber, fmt.Errorf("not an integer: %s", s)
	}
	return int64(f), TokenNumber, nil
}

func ParseFloat64(raw json.RawMessage) (float64, TokenKind, error) {
	if KindOf(raw) != TokenNumber {
		return 0, TokenNumber, errKind
	}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
	return f, TokenNumber, err
}

// ParseDecimal accepts numbers and numeric strings.
func ParseDecimal(raw json.RawMessage) (decimal.Decimal, TokenKind, error) {
	switch KindOf(raw) {
	case TokenNumber:
		d, err := decimal.NewFromString(string(bytes.TrimSpace(raw)))
		return d, TokenNumber, err
	case TokenString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, TokenNumber, err
		}
		d, err := decimal.NewFromString(s)
		return d, TokenNumber, err
	}
	return decimal.Zero, TokenNumber, errKind
}

func ParseBool(raw json.RawMessage) (bool, TokenKind, error) {
	if KindOf(raw) != TokenBool {
		return false, TokenBool, errKind
	}
	var b bool
	err := json.Unmarshal(raw, &b)
	return b, TokenBool, err
}

func ParseString(raw json.RawMessage) (string, TokenKind, error) {
	if KindOf(raw) != TokenString {
		return "", TokenString, errKind
	}
	var s string
	err := json.Unmarshal(raw, &s)
	return s, TokenString, err
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05.999999",
}

// ParseTime accepts the timestamp, date and time renderings of the backend.
func ParseTime(raw json.RawMessage) (time.Time, TokenKind, error) {
	s, _, err := ParseString(raw)
	if err != nil {
		return time.Time{}, TokenString, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, TokenString, nil
		}
	}
	return time.Time{}, TokenString, fmt.Errorf("unrecognized time %q", s)
}

// ParseRaw keeps the token as a raw JSON element.
func ParseRaw(raw json.RawMessage) (json.RawMessage, TokenKind, error) {
	if KindOf(raw) == tokenBad {
		return nil, TokenAny, errKind
	}
	return append(json.RawMessage(nil), bytes.TrimSpace(raw)...), TokenAny, nil
}

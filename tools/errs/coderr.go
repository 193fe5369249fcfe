package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Error codes used across the relay. Kept coarse on purpose: the relay never
// surfaces protocol errors to peers, so codes mostly feed logs and acks.
const (
	CodeAuthFailed      = 1101
	CodeNotAuthorized   = 1102
	CodeBadPayload      = 1201
	CodeStorageFailure  = 1301
	CodeInternalFailure = 1500
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// WithDetail returns a copy carrying extra context; the original is shared
// sentinel-style and must not be mutated.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches by code so sentinel comparisons survive WithDetail copies.
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Shared sentinels.
var (
	ErrAuthFailed    = NewCodeError(CodeAuthFailed, "authentication failed")
	ErrNotAuthorized = NewCodeError(CodeNotAuthorized, "connection not authenticated")
	ErrBadPayload    = NewCodeError(CodeBadPayload, "malformed payload")
)

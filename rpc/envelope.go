package rpc

import (
	"github.com/mrnavastar/mclaunch/util/errs"
)

// Envelope is the response shape of every request/response channel.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Wrap normalises a handler result. The code is the error's code when it has
// one, otherwise its kind; unclassified errors report Internal.
func Wrap(data any, err error) Envelope {
	if err == nil {
		return Envelope{Success: true, Data: data}
	}
	code := errs.CodeOf(err)
	if code == "" {
		code = string(errs.KindInternal)
	}
	return Envelope{
		Success: false,
		Code:    code,
		Message: err.Error(),
		Details: errs.DetailsOf(err),
	}
}

// Err reconstructs a classified error from a failed envelope.
func (e Envelope) Err() error {
	if e.Success {
		return nil
	}
	return errs.WithDetails(errs.New(kindForCode(e.Code), e.Code, e.Message), e.Details)
}

func kindForCode(code string) errs.Kind {
	switch errs.Kind(code) {
	case errs.KindNotFound, errs.KindAlreadyExists, errs.KindInvalidArgument, errs.KindAuthRejected,
		errs.KindServiceUnavailable, errs.KindStageFailure, errs.KindCycleDetected, errs.KindParseError,
		errs.KindTaskInProgress, errs.KindInternal:
		return errs.Kind(code)
	}
	switch code {
	case "bad_request", "unsupported_loader":
		return errs.KindInvalidArgument
	case "bad_credentials", "not_signed_in":
		return errs.KindAuthRejected
	case "download_failed", "checksum_mismatch":
		return errs.KindServiceUnavailable
	}
	return errs.KindInternal
}

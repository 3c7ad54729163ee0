package api

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util/config"
	"github.com/mrnavastar/mclaunch/util/errs"
)

const userAgent = "mclaunch/1.0"

// NewClient returns the resty client shared by every remote collaborator.
// Timeouts and retries are configuration of this client, not of callers.
func NewClient(cfg config.Config) *resty.Client {
	return resty.New().
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.HTTP.Retries).
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})
}

// Version is one row of a loader meta version list.
type Version struct {
	Version   string `json:"version"`
	Stable    *bool  `json:"stable,omitempty"`
	Maven     string `json:"maven,omitempty"`
	Separator string `json:"separator,omitempty"`
	Url       string `json:"url,omitempty"`
}

// remoteError is the yggdrasil error body; other services reuse the shape
// loosely (errorMessage or error only).
type remoteError struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
	Cause        string `json:"cause,omitempty"`
}

func (e *remoteError) details() map[string]string {
	if e == nil || (e.Error == "" && e.ErrorMessage == "") {
		return nil
	}
	details := map[string]string{"error": e.Error, "errorMessage": e.ErrorMessage}
	if e.Cause != "" {
		details["cause"] = e.Cause
	}
	return details
}

// classify turns a resty outcome into the launcher error taxonomy. auth marks
// endpoints where 401/403 mean explicit rejection rather than a bad request.
func classify(op string, resp *resty.Response, err error, auth bool) error {
	if err != nil {
		return errs.Wrap(err, errs.KindServiceUnavailable, "service_unavailable", op)
	}
	if resp == nil || !resp.IsError() {
		return nil
	}

	var body *remoteError
	if e, ok := resp.Error().(*remoteError); ok {
		body = e
	}
	message := fmt.Sprintf("%s: HTTP %d", op, resp.StatusCode())
	if body != nil && body.ErrorMessage != "" {
		message = op + ": " + body.ErrorMessage
	}

	var classified error
	status := resp.StatusCode()
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		classified = errs.New(errs.KindServiceUnavailable, "service_unavailable", message)
	case auth && (status == http.StatusUnauthorized || status == http.StatusForbidden):
		classified = errs.New(errs.KindAuthRejected, "auth_rejected", message)
	case status == http.StatusNotFound:
		classified = errs.New(errs.KindNotFound, "", message)
	default:
		classified = errs.New(errs.KindInvalidArgument, "bad_request", message)
	}
	if details := body.details(); details != nil {
		classified = errs.WithDetails(classified, details)
	}
	return classified
}

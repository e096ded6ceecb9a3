package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// remoteError is the {"error":{code,message}} envelope most JSON APIs
// (including ours) return.
type remoteError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and converts it
// to an error. Structured bodies keep their code and message.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", remote, resp.StatusCode, err)
	}

	var parsed remoteError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		return mapRemoteError(resp.StatusCode, parsed.Error.Code, parsed.Error.Message, remote)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return apperrors.ServiceUnavailable(remote + " unavailable")
	}
	return fmt.Errorf("%s returned status %d: %s", remote, resp.StatusCode, string(body))
}

func mapRemoteError(status int, code, message, remote string) error {
	msg := fmt.Sprintf("%s: %s", remote, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(remote+" resource", message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.Internal(fmt.Errorf("%s rejected credentials (%d/%s)", remote, status, code))
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return apperrors.PaymentRejected(msg)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(msg)
	default:
		return fmt.Errorf("%s error (%d/%s): %s", remote, status, code, message)
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

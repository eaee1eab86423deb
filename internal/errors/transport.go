package errors

import (
	"errors"
	"net"
	"net/url"
)

// MapTransportError classifies a failed HTTP round trip.
// Context expiry keeps its own code so callers can tell a user abort from an outage;
// everything else that never produced a response is TransportUnavailable.
func MapTransportError(err error, message string) error {
	if err == nil {
		return nil
	}
	if mapped := mapContextError(err); mapped != nil {
		var appErr *AppError
		errors.As(mapped, &appErr)
		appErr.Message = message
		return appErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AppError{Code: ErrCodeTimeout, Message: message, Cause: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return TransportUnavailable(urlErr.Err, message)
	}
	return TransportUnavailable(err, message)
}

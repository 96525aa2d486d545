package retry

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/stripe/stripe-go/v79"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

// IsRetryable reports whether repeating the call that produced err may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var cpe *domainErr.CourierProviderError
	if errors.As(err, &cpe) {
		return cpe.Retryable
	}
	return isRetryableStripeError(err) || isRetryableNetworkError(err) || isRetryableSystemError(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isRetryableStripeError(err error) bool {
	var stripeError *stripe.Error
	if !errors.As(err, &stripeError) {
		return false
	}
	// 5xx from the gateway is theirs, 4xx is ours
	if stripeError.HTTPStatusCode >= 500 && stripeError.HTTPStatusCode < 600 {
		return true
	}
	switch stripeError.Code {
	case stripe.ErrorCodeRateLimit, stripe.ErrorCodeLockTimeout:
		return true
	}
	return false
}

func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryableSystemError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

package stripe

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
)

// MapError classifies a Stripe failure. Card errors and non-throttling 4xx
// responses are the caller's fault; everything else is treated as the
// provider being unavailable.
func MapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}

	details := map[string]any{
		"provider_type": string(stripeErr.Type),
	}
	if stripeErr.Code != "" {
		details["provider_code"] = string(stripeErr.Code)
	}
	if stripeErr.Msg != "" {
		details["provider_message"] = stripeErr.Msg
	}

	if isClientCaused(stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, message).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message).WithDetails(details)
}

func isClientCaused(err *stripe.Error) bool {
	if err.Type == stripe.ErrorTypeCard {
		return true
	}
	status := err.HTTPStatusCode
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

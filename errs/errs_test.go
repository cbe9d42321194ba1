package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/errs"
)

func TestErrorStringIncludesStructuredFields(t *testing.T) {
	cause := errors.New("connection reset")
	err := errs.New("binance/rest", errs.CodeRateLimited,
		errs.WithHTTP(429),
		errs.WithExchangeCode(-1003),
		errs.WithMessage("too many requests"),
		errs.WithRemediation("slow down request rate"),
		errs.WithCanonicalCode(errs.CanonicalRateLimited),
		errs.WithCause(cause),
	)

	msg := err.Error()
	require.Contains(t, msg, "scope=binance/rest")
	require.Contains(t, msg, "code=rate_limited")
	require.Contains(t, msg, "canonical=rate_limited")
	require.Contains(t, msg, "http=429")
	require.Contains(t, msg, "exchange_code=-1003")
	require.ErrorIs(t, err, cause)
}

func TestRetriableClassification(t *testing.T) {
	cases := []struct {
		code      errs.Code
		retriable bool
	}{
		{errs.CodeNetwork, true},
		{errs.CodeRateLimited, true},
		{errs.CodeClockSkew, true},
		{errs.CodeUnavailable, true},
		{errs.CodeInvalid, false},
		{errs.CodeExchange, false},
		{errs.CodeNotFound, false},
		{errs.CodeConflict, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.retriable, errs.Retriable(errs.New("test", tc.code)), "code %s", tc.code)
	}
	require.False(t, errs.Retriable(errors.New("plain")))
}

func TestCanonicalExtraction(t *testing.T) {
	err := errs.New("service/order", errs.CodeConflict,
		errs.WithCanonicalCode(errs.CanonicalDuplicateOrder))

	require.Equal(t, errs.CanonicalDuplicateOrder, errs.Canonical(err))
	require.True(t, errs.HasCanonical(err, errs.CanonicalDuplicateOrder))
	require.False(t, errs.HasCanonical(err, errs.CanonicalOrderNotFound))
	require.Equal(t, errs.CanonicalUnknown, errs.Canonical(errors.New("plain")))
}

func TestCodeExtraction(t *testing.T) {
	err := errs.New("binance", errs.CodeNotFound)

	require.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
	require.False(t, errs.HasCode(err, errs.CodeExchange))
	require.False(t, errs.HasCode(errors.New("plain"), errs.CodeNotFound))
}

package cnr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"sixteen alphanumerics", "ABCD1234567890EF", true},
		{"lowercase accepted", "abcd1234567890ef", true},
		{"too short", "short123", false},
		{"too long", "ABCD1234567890EFG", false},
		{"hyphen", "ABCD-234567890EF", false},
		{"leading space", " ABCD1234567890E", false},
		{"empty", "", false},
		{"unicode digit", "ABCD1234567890E٣", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ref, err := ParseReference(tc.input)
			if tc.ok {
				require.NoError(t, err)
				require.Equal(t, tc.input, ref.String())
				require.True(t, ref.Valid())
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidReference))
		})
	}
}

func TestCaseReferenceStorageKey(t *testing.T) {
	t.Parallel()

	ref := CaseReference("ABCD1234567890EF")
	require.Equal(t, "ABCD1234567890EF/intrim_orders/order_3.pdf", ref.StorageKey(InterimOrder, 3))
	require.Equal(t, "ABCD1234567890EF/final_orders/order_1.pdf", ref.StorageKey(FinalOrder, 1))
}

func TestCaseReferenceCacheKey(t *testing.T) {
	t.Parallel()

	ref := CaseReference("abcd1234567890ef")
	require.Equal(t, "ABCD1234567890EF", ref.CacheKey(Cutoff{}))

	upper, err := ParseCutoff("30th January 2025")
	require.NoError(t, err)
	lower, err := ParseCutoff("30th january 2025")
	require.NoError(t, err)
	require.Equal(t, "ABCD1234567890EF|2025-01-30", ref.CacheKey(upper))
	require.Equal(t, ref.CacheKey(upper), ref.CacheKey(lower))

	other, err := ParseCutoff("1st February 2025")
	require.NoError(t, err)
	require.NotEqual(t, ref.CacheKey(upper), ref.CacheKey(other))
}

func TestOutcomeOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, OutcomeComplete, OutcomeOf(nil))
	require.Equal(t, OutcomeNotFound, OutcomeOf(ErrRecordNotFound))
	require.Equal(t, OutcomeExhausted, OutcomeOf(errors.Join(errors.New("x"), ErrRetriesExhausted)))
	require.Equal(t, OutcomeFailed, OutcomeOf(errors.New("boom")))
}

func TestPageStateRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, StateInvalidCaptcha.Retryable())
	require.True(t, StateTransientError.Retryable())
	require.False(t, StateSuccess.Retryable())
	require.False(t, StateRecordNotFound.Retryable())
	require.False(t, StateUnknown.Retryable())
	require.Equal(t, "invalid_captcha", StateInvalidCaptcha.String())
}

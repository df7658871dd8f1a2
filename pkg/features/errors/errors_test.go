package errors_test

import (
	"fmt"
	"testing"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	testCases := []struct {
		name            string
		err             error
		expectedMessage string
		malformed       bool
	}{
		{
			name:            "malformed",
			err:             errors.Malformed("registered with %d entries", 0),
			expectedMessage: "malformed registration status: registered with 0 entries",
			malformed:       true,
		},
		{
			name:            "fetch wrapping malformed",
			err:             &errors.FetchError{Account: "100000_home", Err: errors.Malformed("bad flag")},
			expectedMessage: "fetch registration status for account 100000_home: malformed registration status: bad flag",
			malformed:       true,
		},
		{
			name:            "store",
			err:             &errors.StoreError{Account: "100000_home", Op: "put", Err: cause},
			expectedMessage: "snapshot put for account 100000_home: boom",
		},
		{
			name:            "notify",
			err:             &errors.NotifyError{Channel: "sns", Err: cause},
			expectedMessage: "publish to sns: boom",
		},
	}

	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			if tC.err.Error() != tC.expectedMessage {
				t.Errorf("Received message: %q is different than expected one: %q", tC.err.Error(), tC.expectedMessage)
			}
			if errors.Is(tC.err, errors.ErrMalformedStatus) != tC.malformed {
				t.Errorf("Malformed match: %v is different than expected one: %v", !tC.malformed, tC.malformed)
			}
		})
	}
}

func TestProviderStatus(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", &errors.FetchError{
		Account: "100000_home",
		Err:     &errors.ProviderError{Status: "invalid_credentials"},
	})

	status, ok := errors.ProviderStatus(wrapped)
	if !ok || status != "invalid_credentials" {
		t.Errorf("Received status: %q (%v) is different than expected one: %q", status, ok, "invalid_credentials")
	}

	if _, ok := errors.ProviderStatus(errors.New("network down")); ok {
		t.Errorf("Expected no provider status for a plain error")
	}
}

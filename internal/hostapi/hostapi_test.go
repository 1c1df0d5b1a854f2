package hostapi

import (
	"errors"
	"strings"
	"testing"
)

func TestTunerErrorMessageWithCause(t *testing.T) {
	cause := errors.New("no signal")
	err := &TunerError{Failure: FailureEncrypted, Channel: 42, Cause: cause}

	msg := err.Error()
	if !strings.Contains(msg, "42") {
		t.Errorf("expected message to mention the channel uid, got %q", msg)
	}
	if !strings.Contains(msg, "encrypted") {
		t.Errorf("expected message to mention the failure, got %q", msg)
	}
	if !strings.Contains(msg, "no signal") {
		t.Errorf("expected message to mention the cause, got %q", msg)
	}
}

func TestTunerErrorMessageWithoutCause(t *testing.T) {
	err := &TunerError{Failure: FailureAllTunersBusy, Channel: 7}
	msg := err.Error()
	if !strings.Contains(msg, "all_tuners_busy") {
		t.Errorf("expected message to mention the failure, got %q", msg)
	}
}

func TestTunerErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &TunerError{Failure: FailureError, Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestTunerErrorUnwrapNilCause(t *testing.T) {
	err := &TunerError{Failure: FailureOk}
	if err.Unwrap() != nil {
		t.Fatal("expected Unwrap to return nil when there is no cause")
	}
}

func TestTunerFailureString(t *testing.T) {
	tests := map[TunerFailure]string{
		FailureOk:                "ok",
		FailureEncrypted:         "encrypted",
		FailureAllTunersBusy:     "all_tuners_busy",
		FailureBlockedByRecording: "blocked_by_recording",
		FailureError:             "error",
		TunerFailure(99):         "error",
	}
	for failure, want := range tests {
		if got := failure.String(); got != want {
			t.Errorf("TunerFailure(%d).String() = %q, want %q", failure, got, want)
		}
	}
}

func TestErrorsAsClassifiesTunerError(t *testing.T) {
	var wrapped error = &TunerError{Failure: FailureBlockedByRecording, Channel: 3}

	var tunerErr *TunerError
	if !errors.As(wrapped, &tunerErr) {
		t.Fatal("expected errors.As to match *TunerError")
	}
	if tunerErr.Failure != FailureBlockedByRecording {
		t.Errorf("expected FailureBlockedByRecording, got %v", tunerErr.Failure)
	}
}

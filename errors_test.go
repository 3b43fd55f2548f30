package authcore

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{ErrInvalidCredentials, KindAuthentication},
		{ErrMFAChallengeExpired, KindAuthentication},
		{ErrPasswordReuse, KindValidation},
		{ErrTokenExpired, KindToken},
		{ErrSessionInvalid, KindSession},
		{ErrPermissionDenied, KindAuthorization},
		{fmt.Errorf("%w: connection refused", ErrStoreUnavailable), KindInfrastructure},
		{fmt.Errorf("%w: smtp", ErrNotifierUnavailable), KindInfrastructure},
		{fmt.Errorf("%w: bad ttl", ErrConfigInvalid), KindStartup},
		{&ValidationError{Fields: []FieldError{{Field: "email", Message: "required"}}}, KindValidation},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestRetryableOnlyForInfrastructure(t *testing.T) {
	for _, k := range []ErrorKind{KindUnknown, KindValidation, KindAuthentication, KindToken, KindSession, KindAuthorization, KindStartup} {
		if k.Retryable() {
			t.Fatalf("%s should not be retryable", k)
		}
	}
	if !KindInfrastructure.Retryable() {
		t.Fatal("infrastructure errors should be retryable")
	}
}

func TestValidationError(t *testing.T) {
	var verr ValidationError
	if verr.orNil() != nil {
		t.Fatal("empty ValidationError should be nil")
	}
	verr.add("email", "required")
	verr.add("password", "too short")
	verr.add("password", "too common")

	err := verr.orNil()
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "validation failed: ") || !strings.Contains(msg, "email: required") {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := verr.Field("password"); len(got) != 2 {
		t.Fatalf("expected 2 password messages, got %v", got)
	}
	if got := verr.Field("full_name"); got != nil {
		t.Fatalf("expected no full_name messages, got %v", got)
	}
	if (&ValidationError{}).Error() != "validation failed" {
		t.Fatal("empty ValidationError message")
	}
}

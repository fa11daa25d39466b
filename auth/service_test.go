package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hotelhub/pricing"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifier_IssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	cases := []struct {
		name   string
		caller Caller
		want   pricing.CallerType
	}{
		{name: "customer", caller: Caller{Subject: "u-1", Role: RoleCustomer}, want: pricing.CallerCustomer},
		{name: "agency", caller: Caller{Subject: "u-2", Role: RoleAgency, AgencyID: "agency-1"}, want: pricing.CallerAgency},
		{name: "admin", caller: Caller{Subject: "u-3", Role: RoleAdmin}, want: pricing.CallerAdmin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := v.Issue(tc.caller)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			got, err := v.Verify(token)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if got != tc.caller {
				t.Fatalf("expected %+v, got %+v", tc.caller, got)
			}
			if got.CallerType() != tc.want {
				t.Fatalf("expected caller type %s, got %s", tc.want, got.CallerType())
			}
		})
	}
}

func TestVerifier_RejectsBadTokens(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func(extra jwt.MapClaims) jwt.MapClaims {
		c := jwt.MapClaims{"sub": "u", "role": "customer", "exp": now.Add(time.Hour).Unix()}
		for k, val := range extra {
			c[k] = val
		}
		return c
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: sign(jwt.SigningMethodHS256, []byte("other"), valid(nil))},
		{name: "expired", token: sign(jwt.SigningMethodHS256, []byte("test-secret"), valid(jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}))},
		{name: "no expiry", token: sign(jwt.SigningMethodHS256, []byte("test-secret"), jwt.MapClaims{"sub": "u", "role": "customer"})},
		{name: "wrong algorithm", token: sign(jwt.SigningMethodHS512, []byte("test-secret"), valid(nil))},
		{name: "unknown role", token: sign(jwt.SigningMethodHS256, []byte("test-secret"), valid(jwt.MapClaims{"role": "superuser"}))},
		{name: "missing role", token: sign(jwt.SigningMethodHS256, []byte("test-secret"), jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()})},
		{name: "agency without id", token: sign(jwt.SigningMethodHS256, []byte("test-secret"), valid(jwt.MapClaims{"role": "agency"}))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerifier_Clock(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := newTestVerifier(t).WithClock(func() time.Time { return issuedAt })

	token, err := v.Issue(Caller{Subject: "u", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	v.WithClock(func() time.Time { return issuedAt.Add(DefaultTokenTTL + time.Minute) })
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier(""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestCaller_CanViewAgency(t *testing.T) {
	cases := []struct {
		caller Caller
		id     string
		want   bool
	}{
		{caller: Caller{Role: RoleAdmin}, id: "a-1", want: true},
		{caller: Caller{Role: RoleAgency, AgencyID: "a-1"}, id: "a-1", want: true},
		{caller: Caller{Role: RoleAgency, AgencyID: "a-2"}, id: "a-1", want: false},
		{caller: Anonymous, id: "a-1", want: false},
	}
	for _, tc := range cases {
		if got := tc.caller.CanViewAgency(tc.id); got != tc.want {
			t.Fatalf("%+v viewing %s: expected %v, got %v", tc.caller, tc.id, tc.want, got)
		}
	}
}

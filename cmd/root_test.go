package cmd

import (
	"fmt"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"login", "logout", "refresh", "revoke", "introspect", "status"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q is not registered", name)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("generic"), ExitCodeError},
		{&AuthRequiredError{Service: "svc"}, ExitCodeAuthRequired},
		{&AuthFailedError{Service: "svc", Err: fmt.Errorf("boom")}, ExitCodeAuthFailed},
		{fmt.Errorf("wrapped: %w", &AuthRequiredError{Service: "svc"}), ExitCodeAuthRequired},
	}

	for _, tc := range cases {
		if got := getExitCode(tc.err); got != tc.want {
			t.Errorf("getExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	if _, err := parseKind("access"); err != nil {
		t.Errorf("parseKind(access) failed: %v", err)
	}
	if _, err := parseKind("refresh"); err != nil {
		t.Errorf("parseKind(refresh) failed: %v", err)
	}
	if _, err := parseKind("bearer"); err == nil {
		t.Error("parseKind(bearer) should fail")
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	if GetVersion() != "1.2.3" {
		t.Errorf("GetVersion() = %q", GetVersion())
	}
}

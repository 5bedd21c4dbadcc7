package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iliyamo/beat-license-registry/internal/utils"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir()) // no .env
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHashKeyCommand(t *testing.T) {
	out, err := runCLI(t, "hash-key", "--cost", "4", "secret-key")
	if err != nil {
		t.Fatalf("hash-key: %v", err)
	}
	hash := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "SERVICE_KEY_HASH="))
	if !utils.VerifyServiceKey(hash, "secret-key") {
		t.Fatalf("printed hash does not verify: %q", out)
	}

	out, err = runCLI(t, "hash-key", "--generate", "--cost", "4")
	if err != nil {
		t.Fatalf("hash-key --generate: %v", err)
	}
	if !strings.Contains(out, "SERVICE_KEY=") || !strings.Contains(out, "SERVICE_KEY_HASH=") {
		t.Fatalf("generate output = %q", out)
	}

	if _, err := runCLI(t, "hash-key"); err == nil {
		t.Fatalf("hash-key without key or --generate should fail")
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := runCLI(t, "token", "--sub", "producer-1", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	sub, err := utils.ParseSubject("cli-secret", strings.TrimSpace(out))
	if err != nil || sub != "producer-1" {
		t.Fatalf("ParseSubject = %q, %v", sub, err)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := runCLI(t, "token", "--sub", "x"); err == nil {
		t.Fatalf("token without secret should fail")
	}
}

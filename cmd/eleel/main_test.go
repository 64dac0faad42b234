package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigp/eleel/internal/fcucache"
)

func TestFcuPolicyMapping(t *testing.T) {
	cases := map[string]fcucache.MatchPolicy{
		"exact":     fcucache.Exact,
		"head_only": fcucache.HeadOnly,
		"loose":     fcucache.Loose,
		"":          fcucache.Loose,
		"bogus":     fcucache.Loose,
	}
	for in, want := range cases {
		if got := fcuPolicy(in); got != want {
			t.Fatalf("fcuPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestScanConfigFlag(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"--config", "a.yaml"}, "a.yaml"},
		{[]string{"-config", "b.yaml"}, "b.yaml"},
		{[]string{"--listen-addr", ":9999"}, ""},
		{[]string{"--config"}, ""},
	}
	for _, c := range cases {
		if got := scanConfigFlag(c.args); got != c.want {
			t.Fatalf("scanConfigFlag(%v) = %q, want %q", c.args, got, c.want)
		}
	}
}

func TestParseFlagsAppliesFileThenFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eleel.yaml")
	content := "listen_addr: \":9000\"\ncontroller_secret: \"abc\"\nclient_secrets:\n  - id: teku\n    secret: def\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, exit, code := parseFlags([]string{"--config", path, "--listen-addr", ":7777"})
	if exit {
		t.Fatalf("unexpected exit, code %d", code)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("ListenAddr = %q, want the flag override :7777", cfg.ListenAddr)
	}
	if cfg.ControllerSecret != "abc" {
		t.Fatalf("ControllerSecret = %q, want value from config file", cfg.ControllerSecret)
	}
}

func TestParseFlagsVersionExitsCleanly(t *testing.T) {
	_, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Fatalf("exit = %v, code = %d, want exit=true code=0", exit, code)
	}
}

func TestParseFlagsMissingConfigFileExits(t *testing.T) {
	_, exit, code := parseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if !exit || code != 2 {
		t.Fatalf("exit = %v, code = %d, want exit=true code=2", exit, code)
	}
}

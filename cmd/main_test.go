package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	patcher "github.com/povsister/xray-subscription-patcher"
)

func parseFlags(t *testing.T, argv ...string) (*cliFlags, *pflag.FlagSet) {
	t.Helper()
	f := &cliFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(argv); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return f, fs
}

func writeOptionsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patcher.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const optionsFile = `
output: /tmp/xray/full.json
restart-command: [systemctl, restart, xray]
timeout: 5s
patch: true
subscriptions:
  - tag: nl
    url: https://example.com/nl
`

func TestResolve_FlagsOnly(t *testing.T) {
	f, fs := parseFlags(t, "--restart-cmd", "systemctl  restart xray", "--dry-run", "a=http://x", "b=https://y")
	opts, subs, err := f.resolve(fs, fs.Args())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(opts.RestartCommand, []string{"systemctl", "restart", "xray"}) {
		t.Fatalf("restart command=%q", opts.RestartCommand)
	}
	if !opts.DryRun || opts.Patch {
		t.Fatalf("dryRun=%v patch=%v", opts.DryRun, opts.Patch)
	}
	if opts.Output != patcher.DefaultOutputPath || opts.Timeout != patcher.DefaultFetchTimeout {
		t.Fatalf("defaults not applied: %+v", opts)
	}
	want := []patcher.Subscription{{Tag: "a", URL: "http://x"}, {Tag: "b", URL: "https://y"}}
	if !reflect.DeepEqual(subs, want) {
		t.Fatalf("subs=%+v", subs)
	}
}

func TestResolve_FileWithUnsetFlags(t *testing.T) {
	f, fs := parseFlags(t, "--config", writeOptionsFile(t, optionsFile), "de=https://example.com/de")
	opts, subs, err := f.resolve(fs, fs.Args())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Output != "/tmp/xray/full.json" || !opts.Patch || opts.Timeout != 5*time.Second {
		t.Fatalf("file values overridden by flag defaults: %+v", opts)
	}
	if !reflect.DeepEqual(opts.RestartCommand, []string{"systemctl", "restart", "xray"}) {
		t.Fatalf("restart command=%q", opts.RestartCommand)
	}
	if opts.UserAgent != patcher.DefaultUserAgent {
		t.Fatalf("user-agent=%q", opts.UserAgent)
	}
	want := []patcher.Subscription{
		{Tag: "nl", URL: "https://example.com/nl"},
		{Tag: "de", URL: "https://example.com/de"},
	}
	if !reflect.DeepEqual(subs, want) {
		t.Fatalf("subs=%+v", subs)
	}
}

func TestResolve_ChangedFlagsOverrideFile(t *testing.T) {
	f, fs := parseFlags(t,
		"-c", writeOptionsFile(t, optionsFile),
		"--timeout", "1s",
		"--patch=false",
		"-o", "/tmp/xray/outbounds.json",
		"--restart-cmd", "xkeen -restart",
	)
	opts, _, err := f.resolve(fs, fs.Args())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Timeout != time.Second || opts.Patch || opts.Output != "/tmp/xray/outbounds.json" {
		t.Fatalf("flags did not override file: %+v", opts)
	}
	if !reflect.DeepEqual(opts.RestartCommand, []string{"xkeen", "-restart"}) {
		t.Fatalf("restart command=%q", opts.RestartCommand)
	}
}

func TestResolve_NoSubscriptions(t *testing.T) {
	f, fs := parseFlags(t, "--dry-run")
	if _, _, err := f.resolve(fs, fs.Args()); !errors.Is(err, patcher.ErrMalformedArgument) {
		t.Fatalf("expected ErrMalformedArgument, got %v", err)
	}
}

func TestResolve_DuplicateAcrossFileAndArgs(t *testing.T) {
	f, fs := parseFlags(t, "-c", writeOptionsFile(t, optionsFile), "nl=https://example.com/other")
	if _, _, err := f.resolve(fs, fs.Args()); !errors.Is(err, patcher.ErrDuplicateTag) {
		t.Fatalf("expected ErrDuplicateTag, got %v", err)
	}
}

func TestResolve_BadOptionsFile(t *testing.T) {
	f, fs := parseFlags(t, "-c", writeOptionsFile(t, "unknown-key: 1\n"), "a=http://x")
	if _, _, err := f.resolve(fs, fs.Args()); err == nil {
		t.Fatalf("expected an error for an invalid options file")
	}
}

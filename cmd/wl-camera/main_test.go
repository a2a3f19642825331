package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faith0x7dc/wl-camera-shm/internal/capture"
	"github.com/faith0x7dc/wl-camera-shm/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{context.Canceled, 0},
		{fmt.Errorf("wrapped: %w", context.Canceled), 0},
		{&pipeline.RuntimeError{Op: "capture", Err: capture.ErrTimedOut}, 1},
		{&capture.InitError{Device: "/nonexistent", Reason: capture.ErrDeviceNotFound}, 1},
		{errors.New("boom"), 1},
	}
	for _, c := range cases {
		if got := exitCode(c.err); got != c.want {
			t.Fatalf("exitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgFile, device = "", "/dev/video0"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommandAppliesFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wl-camera.yaml")
	data := "device: /dev/video2\npipeline:\n  publish_policy: Overwrite\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "device: /dev/video2") {
		t.Fatalf("device from file missing:\n%s", out)
	}
	if !strings.Contains(out, "publish_policy: overwrite") {
		t.Fatalf("policy not normalized:\n%s", out)
	}

	out, err = execute(t, "config", "--config", path, "-d", "/dev/video5")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "device: /dev/video5") {
		t.Fatalf("flag did not override file:\n%s", out)
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wl-camera.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  publish_policy: newest\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := execute(t, "config", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "publish_policy") {
		t.Fatalf("expected publish_policy error, got %v", err)
	}
	if exitCode(err) != 1 {
		t.Fatal("invalid config must exit 1")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "wl-camera v"+version {
		t.Fatalf("version output = %q", out)
	}
}

func TestProbeMissingDeviceFails(t *testing.T) {
	_, err := execute(t, "probe", "-d", filepath.Join(t.TempDir(), "video0"))
	if err == nil {
		t.Fatal("expected probe of a missing device to fail")
	}
}

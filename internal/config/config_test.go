package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// chdirTemp runs the test in an empty directory so no .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://localhost:5070" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.PollRetries != 0 {
		t.Errorf("PollRetries = %d, want 0", cfg.PollRetries)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.LogoutOnInvalid || cfg.ServerLogout {
		t.Error("session policies should default to off")
	}
	if !strings.HasPrefix(cfg.RecordCommand, "arecord") {
		t.Errorf("RecordCommand = %q", cfg.RecordCommand)
	}
	if cfg.Level() != logrus.InfoLevel {
		t.Errorf("Level = %v", cfg.Level())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRANSCRIBE_API_URL", "https://asr.example.com")
	t.Setenv("TRANSCRIBE_POLL_INTERVAL", "500ms")
	t.Setenv("TRANSCRIBE_POLL_RETRIES", "3")
	t.Setenv("TRANSCRIBE_LOGOUT_ON_INVALID", "true")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://asr.example.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PollRetries != 3 {
		t.Errorf("PollRetries = %d", cfg.PollRetries)
	}
	if !cfg.LogoutOnInvalid {
		t.Error("LogoutOnInvalid should be true")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := chdirTemp(t)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("TRANSCRIBE_EXPORT_DIR=/tmp/out\nTRANSCRIBE_LOG_LEVEL=debug\n"), 0o600)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExportDir != "/tmp/out" {
		t.Errorf("ExportDir = %q", cfg.ExportDir)
	}
	if cfg.Level() != logrus.DebugLevel {
		t.Errorf("Level = %v", cfg.Level())
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRANSCRIBE_API_URL", "https://env.example.com")
	t.Setenv("TRANSCRIBE_EXPORT_DIR", "/from/env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--api-url", "http://flag.example.com:8080", "--poll-interval", "1s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://flag.example.com:8080" {
		t.Errorf("APIURL = %q, want flag value", cfg.APIURL)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ExportDir != "/from/env" {
		t.Errorf("unset flag should not override env, ExportDir = %q", cfg.ExportDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"TRANSCRIBE_API_URL":       "ftp://nope",
		"TRANSCRIBE_POLL_INTERVAL": "0s",
		"TRANSCRIBE_POLL_RETRIES":  "-1",
		"TRANSCRIBE_LOG_LEVEL":     "loud",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(key, val)
			_, err := Load(nil)
			if err == nil || !strings.HasPrefix(err.Error(), "config: "+key) {
				t.Errorf("err = %v, want config error for %s", err, key)
			}
		})
	}
}

func TestOpenLog(t *testing.T) {
	cfg := &Config{LogFile: filepath.Join(t.TempDir(), "logs", "transcribe.log"), LogLevel: "warn"}
	logger := logrus.New()

	f, err := cfg.OpenLog(logger)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	f.Close()

	data, _ := os.ReadFile(cfg.LogFile)
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log contents = %q", data)
	}
}

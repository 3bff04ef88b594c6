package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootFlagsDefaultFromDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PORT=7070\nCONFIG_PATH=/etc/live/config.yaml\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	for _, key := range []string{"PORT", "CONFIG_PATH"} {
		if prev, ok := os.LookupEnv(key); ok {
			t.Setenv(key, prev)
			os.Unsetenv(key)
		} else {
			key := key
			t.Cleanup(func() { os.Unsetenv(key) })
		}
	}
	prev := dotenvFiles
	dotenvFiles = []string{envFile}
	t.Cleanup(func() { dotenvFiles = prev })

	cmd := newRootCmd()
	if got := cmd.PersistentFlags().Lookup("port").DefValue; got != "7070" {
		t.Fatalf("expected port from .env, got %q", got)
	}
	if got := cmd.PersistentFlags().Lookup("config").DefValue; got != "/etc/live/config.yaml" {
		t.Fatalf("expected config path from .env, got %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

const adminHex = "0x00000000000000000000000000000000000000aD"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LBP_ADMIN", adminHex)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Admin != common.HexToAddress(adminHex) {
		t.Errorf("Admin = %s", cfg.Admin.Hex())
	}
	if cfg.DepositWindow != 7*24*time.Hour {
		t.Errorf("DepositWindow = %s", cfg.DepositWindow)
	}
	if cfg.PenaltyBps != 1000 || cfg.InitialReleaseBps != 2500 {
		t.Errorf("bps = %d/%d", cfg.PenaltyBps, cfg.InitialReleaseBps)
	}
	if !cfg.IntermediateMenu.Valid(12) || cfg.IntermediateMenu.Valid(1) {
		t.Errorf("unexpected intermediate menu %s", cfg.IntermediateMenu)
	}
	if cfg.DiscoveryMenu.Valid(12) {
		t.Errorf("discovery menu should not offer 12 weeks: %s", cfg.DiscoveryMenu)
	}
	if cfg.DevMode {
		t.Error("dev mode should default off")
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("LBP_ADMIN", adminHex)
	t.Setenv("LBP_PORT", "9000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "8080", "")
	flags.Bool("dev-mode", false, "")
	if err := flags.Parse([]string{"--port=9100", "--dev-mode"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %s, want 9100", cfg.Port)
	}
	if !cfg.DevMode {
		t.Error("expected dev mode from flag")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lbp.yaml")
	content := "admin: \"" + adminHex + "\"\n" +
		"locking-periods: \"2w:10000,6w:12000\"\n" +
		"deposit-window: 48h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IntermediateMenu.Valid(6) || cfg.IntermediateMenu.Valid(4) {
		t.Errorf("menu = %s", cfg.IntermediateMenu)
	}
	if cfg.DepositWindow != 48*time.Hour {
		t.Errorf("DepositWindow = %s", cfg.DepositWindow)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing admin", map[string]string{}},
		{"bad admin", map[string]string{"LBP_ADMIN": "alice"}},
		{"bad menu", map[string]string{"LBP_ADMIN": adminHex, "LBP_LOCKING_PERIODS": "2w:12000,4w:11000"}},
		{"penalty out of range", map[string]string{"LBP_ADMIN": adminHex, "LBP_PENALTY_BPS": "20000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load("", nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"vocabot/internal/config"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your vocabot installation",
		Long: `Verifies that vocabot's configuration, databases and analysis engine
are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Vocabot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'vocabot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Analysis engine key
			apiKey := cfg.Analysis.APIKey
			if apiKey == "" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			if apiKey == "" {
				printWarn("Analysis engine", "no API key, media analysis will be disabled")
				warned++
			} else {
				printPass("Analysis engine", "key configured, model "+cfg.Analysis.Model)
				passed++
			}

			// 4. Whitelist
			if cfg.Whitelist.AllowAll {
				printWarn("Whitelist", "allowAll is set, every sender will be served")
				warned++
			} else if len(cfg.Whitelist.Numbers) == 0 {
				printWarn("Whitelist", "empty, every sender will be ignored")
				warned++
			} else {
				printPass("Whitelist", fmt.Sprintf("%d number(s)", len(cfg.Whitelist.Numbers)))
				passed++
			}

			// 5. Session database writable
			if cfg.Channels.Whatsmeow.Enabled {
				if err := checkDatabase(cfg.Channels.Whatsmeow.DBPath); err != nil {
					printFail("Session database", err.Error())
					failed++
				} else {
					printPass("Session database", cfg.Channels.Whatsmeow.DBPath)
					passed++
				}
			}

			// 6. History database writable
			if cfg.History.Enabled {
				if err := checkDatabase(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", cfg.History.DBPath)
					passed++
				}
			}

			// 7. Webhook listener
			if cfg.Channels.CloudAPI.Enabled {
				if err := checkAddr(cfg.Channels.CloudAPI.ListenAddr); err != nil {
					printWarn("Webhook listener", fmt.Sprintf("%s may be in use: %v", cfg.Channels.CloudAPI.ListenAddr, err))
					warned++
				} else {
					printPass("Webhook listener", cfg.Channels.CloudAPI.ListenAddr+" available")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running vocabot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nVocabot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Vocabot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("no path configured")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"togglbot/internal/config"
	"togglbot/internal/domain"
	"togglbot/internal/telegram"
	"togglbot/internal/toggl"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your togglbot setup",
		Long: `Verifies that credentials, the session database, and the vendor APIs
(Telegram, Toggl) are reachable and correctly configured. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("togglbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Configuration complete
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				var missing *config.MissingError
				if errors.As(err, &missing) {
					for _, v := range missing.Vars {
						printFail("Credential", v+" is not set")
						failed++
					}
				} else {
					printFail("Configuration", err.Error())
					failed++
				}
				fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Configuration", "all required values present")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// 2. Session database writable
			if err := checkDatabase(cfg.Session.DBPath); err != nil {
				printFail("Session database", err.Error())
				failed++
			} else {
				printPass("Session database", cfg.Session.DBPath)
				passed++
			}

			// 3. Server port available
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// 4. Telegram token valid (getMe)
			tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Logger: logger})
			if err != nil {
				printFail("Telegram", err.Error())
				failed++
			} else {
				printPass("Telegram", "@"+tg.Username())
				passed++
			}

			// 5. Toggl key valid (/me resolves a workspace)
			tracker := toggl.New(toggl.Config{
				APIBase: cfg.Toggl.APIBase,
				APIKey:  cfg.Toggl.APIKey,
				Logger:  logger,
			})
			if _, err := tracker.Clients(ctx); err != nil {
				var trackerErr *domain.TrackerError
				if errors.As(err, &trackerErr) && trackerErr.Status == 403 {
					printFail("Toggl", "API key rejected (403)")
				} else {
					printFail("Toggl", err.Error())
				}
				failed++
			} else {
				printPass("Toggl", "workspace reachable")
				passed++
			}

			// 6. Gemini key present (reachability is checked on first use;
			// a generateContent probe would consume quota)
			if cfg.Gemini.APIKey != "" {
				printPass("Gemini", "API key configured, model "+cfg.Gemini.Model)
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running togglbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ntogglbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! togglbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-18s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-18s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-18s %s\n", check, detail)
}

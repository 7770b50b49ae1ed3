package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dimeagent/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the agent installation",
		Long: `Verifies that the configuration, transaction database, message source,
and downstream backend are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Dime Agent Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'dimeagent init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Transaction database writable
			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 4. Message source
			switch cfg.Source.Provider {
			case "imessage":
				if err := checkChatDB(cfg.Source.ChatDBPath); err != nil {
					printFail("chat.db", err.Error())
					failed++
				} else {
					printPass("chat.db", cfg.Source.ChatDBPath)
					passed++
				}
			case "telegram":
				printPass("Telegram token", "configured")
				passed++
			}

			// 5. Monitored phone
			if cfg.Source.MonitoredPhone == "" {
				printWarn("Monitored phone", "not set; messages from any sender will be processed")
				warned++
			} else {
				printPass("Monitored phone", cfg.Source.MonitoredPhone)
				passed++
			}

			// 6. Gemini API key resolved
			printPass("Gemini API key", "set")
			passed++

			// 7. Chat backend reachable
			if err := checkBackend(cfg.Chat.BackendURL); err != nil {
				printWarn("Chat backend", fmt.Sprintf("%s unreachable: %v", cfg.Chat.BackendURL, err))
				warned++
			} else {
				printPass("Chat backend", cfg.Chat.BackendURL)
				passed++
			}

			// 8. Control API port available
			if err := checkPort(cfg.API.Host, cfg.API.Port); err != nil {
				printWarn("API port", fmt.Sprintf("port %d may be in use: %v", cfg.API.Port, err))
				warned++
			} else {
				printPass("API port", fmt.Sprintf("%s:%d available", cfg.API.Host, cfg.API.Port))
				passed++
			}

			// 9. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the agent.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe agent should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The agent is ready to run.\n")
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

// checkChatDB verifies the Messages database can be read. A permission error
// almost always means the terminal lacks Full Disk Access.
func checkChatDB(path string) error {
	f, err := os.Open(config.ExpandPath(path))
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied (grant Full Disk Access): %w", err)
		}
		return err
	}
	return f.Close()
}

func checkBackend(baseURL string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
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

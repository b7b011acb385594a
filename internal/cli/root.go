package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath    string
	redisAddr string
	logMode   string
)

var rootCmd = &cobra.Command{
	Use:   "splitlab",
	Short: "Splitlab - a self-hosted experimentation engine",
	Long: `Splitlab is a self-hosted A/B testing engine: weighted sticky variant
assignment, event tracking and two-proportion significance testing behind a
single binary with embedded SQLite.

Running without a subcommand starts the server (same as 'splitlab serve').`,
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SPLITLAB_DB_PATH", "./splitlab.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", os.Getenv("SPLITLAB_REDIS_ADDR"), "redis address for the read-through cache (optional)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", getEnvOrDefault("SPLITLAB_LOG_MODE", "prod"), "log mode (prod or dev)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

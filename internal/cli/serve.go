package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/logger"
	"github.com/splitlab/splitlab/internal/server"
	"github.com/splitlab/splitlab/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the splitlab server",
	Long: `Start the HTTP server.

The server provides:
  - Public assignment and event-tracking endpoints
  - Token-protected experiment administration
  - /health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort(), "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func defaultPort() int {
	if p, err := strconv.Atoi(os.Getenv("SPLITLAB_PORT")); err == nil && p > 0 {
		return p
	}
	return 8099
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	var c cache.Cache = cache.Noop{}
	if redisAddr != "" {
		c = cache.NewRedis(redisAddr, log)
		log.Info("cache enabled", "redis", redisAddr)
	}

	engine := experiment.New(s, c, experiment.SystemClock{}, experiment.NewRandom(), log)
	srv := server.New(engine, s, log, port)

	fmt.Println()
	fmt.Printf("splitlab running on http://localhost:%d\n", port)
	fmt.Printf("Admin token: %s\n", srv.Token())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}

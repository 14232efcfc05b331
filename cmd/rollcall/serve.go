package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/logging"
	"github.com/rollcall/attendance/internal/notify"
	"github.com/rollcall/attendance/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the file and remote watchers and the notification server",
	Long: `Run both change watchers and the notification server until interrupted.

Each watcher re-reads its config document on every tick, so enabling or
disabling it with "rollcall config" takes effect without a restart.

Endpoints:
  ws://localhost:PORT/ws                       Push notifications
  http://localhost:PORT/notifications?lastCheck=RFC3339
  http://localhost:PORT/health`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Notification server port (default: notify.port)")
	serveCmd.Flags().Bool("no-remote", false, "Do not start the remote sheet watcher")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := mustOpenApp(ctx)
	defer a.Close()

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = appConfig.NotifyPort
	}
	server := notify.NewServer(a.publisher, &notify.Config{Port: port, Logger: logger})
	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start notification server: %v\n", err)
		os.Exit(1)
	}

	runners := []*watcher.Runner{}
	fileRunner, _ := a.fileRunner()
	runners = append(runners, fileRunner)
	if noRemote, _ := cmd.Flags().GetBool("no-remote"); !noRemote {
		remoteRunner, _ := a.remoteRunner()
		runners = append(runners, remoteRunner)
	}
	for _, r := range runners {
		if err := r.Start(ctx); err != nil {
			logging.LogError(logger, "serve", "runServe", "start watcher", nil, err)
		}
	}

	fmt.Printf("Notification server on %s (mirror: %s)\n", server.Addr(), mirrorStatus(a))
	fmt.Println("Press Ctrl+C to stop...")

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	for _, r := range runners {
		r.Stop()
	}
	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		os.Exit(1)
	}
}

func mirrorStatus(a *app) string {
	if a.coord.MirrorAvailable() {
		return "available"
	}
	return "unavailable, flat store only"
}

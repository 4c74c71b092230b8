// Command bidictl translates WebDriver BiDi commands into the Chrome
// DevTools Protocol, launching (or attaching to) a Chromium-family
// browser and speaking BiDi over a WebSocket, a NUL-framed pipe, or as
// an embedded library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/bidictl/internal/log"
	"github.com/grantcarthew/bidictl/internal/session"
	"github.com/grantcarthew/bidictl/internal/transport"
)

// Version is set at build time.
var Version = "dev"

var (
	flagPort     int
	flagPipe     bool
	flagHeadless bool
	flagDebug    bool
	flagBind     string
)

var rootCmd = &cobra.Command{
	Use:           "bidictl",
	Short:         "WebDriver BiDi to Chrome DevTools Protocol translator",
	Long:          "bidictl launches a Chromium-family browser and translates WebDriver BiDi commands into CDP, serving one BiDi session per connection.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "CDP remote-debugging port to launch the browser on (0 uses the default port 9222)")
	rootCmd.Flags().BoolVar(&flagPipe, "pipe", false, "Serve a single BiDi session over stdin/stdout instead of a WebSocket")
	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Launch the browser without a visible window")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable verbose debug logging")
	rootCmd.Flags().StringVar(&flagBind, "bind", "localhost:9339", "host:port the WebSocket server listens on (ignored with --pipe)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(flagDebug)

	cfg := session.Config{
		Headless: flagHeadless,
		Port:     flagPort,
	}

	if flagPipe {
		return runPipe(ctx, cfg, logger)
	}
	return runWebSocket(ctx, cfg, logger, flagBind)
}

// runPipe serves exactly one BiDi session framed over stdin/stdout,
// per §6's OS pipe transport variant — the parent process that spawned
// this one is the only client there will ever be.
func runPipe(ctx context.Context, cfg session.Config, logger *log.Logger) error {
	t := transport.NewPipe(os.Stdin, os.Stdout, os.Stdin)
	sess := session.New(cfg, t, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx) }()

	select {
	case <-ctx.Done():
		sess.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// runWebSocket listens on bind and spawns one session.Session per
// accepted connection, per §6: "treats each connection as one BiDi
// session".
func runWebSocket(ctx context.Context, cfg session.Config, logger *log.Logger, bind string) error {
	server, err := transport.NewWebSocketServer(bind)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	defer server.Close()

	logger.Infof("SERVER", "listening on %s", server.Addr())

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	for {
		conn, err := server.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveConnection(ctx, cfg, logger, conn)
	}
}

func serveConnection(ctx context.Context, cfg session.Config, logger *log.Logger, t transport.Transport) {
	sess := session.New(cfg, t, logger)
	if err := sess.Run(ctx); err != nil {
		logger.Errorf("SESSION", "session ended: %v", err)
	}
}

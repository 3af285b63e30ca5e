// Command relay-directory runs the directory service: the well-known
// rendezvous point brokers register with and clients query for the current
// broker list.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/relay/pkg/directory"
	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/relayops"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay-directory",
	Short: "Directory service for the relay broker mesh",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	relaylog.Init(relaylog.Config{Level: relaylog.Level(level), JSONOutput: jsonOutput})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the directory service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "9000", "TCP port to listen on")
	serveCmd.Flags().String("metrics-port", "9100", "Prometheus /metrics port, 0 disables it")
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	metricsPort, _ := cmd.Flags().GetString("metrics-port")

	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", port, err)
	}

	registry := directory.New()
	srv := directory.NewServer(registry, ln)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	opsSrv := relayops.NewServer()
	opsSrv.MarkReady()
	if metricsPort != "0" {
		go func() {
			if err := opsSrv.Start(":" + metricsPort); err != nil {
				relaylog.Component("relay-directory").Warn().Err(err).Msg("ops server stopped")
			}
		}()
	}

	fmt.Printf("relay-directory listening on :%s\n", port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("directory server stopped: %w", err)
	}

	return ln.Close()
}

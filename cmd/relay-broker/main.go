// Command relay-broker runs one broker node of the mesh: it accepts
// publisher, subscriber, and peer-broker connections, registers itself with
// a directory service, and dials any bootstrap peers it's given.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuemby/relay/pkg/broker"
	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/relayops"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay-broker",
	Short: "Broker node of the relay pub/sub mesh",
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
	Short: "Start a broker node",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("ip", "127.0.0.1", "IP address this broker advertises to peers and the directory")
	serveCmd.Flags().String("port", "9200", "TCP port to listen on")
	serveCmd.Flags().String("metrics-port", "9300", "Prometheus /metrics port, 0 disables it")
	serveCmd.Flags().StringP("directory", "d", "", "Directory service address (host:port)")
	serveCmd.Flags().StringSliceP("bootstrap", "b", nil, "Peer broker addresses to dial at startup (host:port, repeatable)")
	serveCmd.Flags().String("config", "", "YAML file supplying ip/port/directory/bootstrap instead of flags")
}

// brokerConfig is the YAML shape accepted by --config, mirroring the flag
// surface so either can be used interchangeably.
type brokerConfig struct {
	IP        string   `yaml:"ip"`
	Port      string   `yaml:"port"`
	Directory string   `yaml:"directory"`
	Bootstrap []string `yaml:"bootstrap"`
}

func loadConfig(path string) (brokerConfig, error) {
	var cfg brokerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ip, _ := cmd.Flags().GetString("ip")
	port, _ := cmd.Flags().GetString("port")
	metricsPort, _ := cmd.Flags().GetString("metrics-port")
	directoryAddr, _ := cmd.Flags().GetString("directory")
	bootstrap, _ := cmd.Flags().GetStringSlice("bootstrap")
	configPath, _ := cmd.Flags().GetString("config")

	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.IP != "" {
			ip = cfg.IP
		}
		if cfg.Port != "" {
			port = cfg.Port
		}
		if cfg.Directory != "" {
			directoryAddr = cfg.Directory
		}
		if len(cfg.Bootstrap) > 0 {
			bootstrap = cfg.Bootstrap
		}
	}

	self := types.BrokerAddr{IP: ip, Port: port}
	b := broker.New(self)

	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", port, err)
	}

	srv := broker.NewServer(b, ln)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	if directoryAddr != "" {
		if err := registerWithDirectory(srv, self, directoryAddr); err != nil {
			relaylog.WithBroker(relaylog.Component("relay-broker"), self.String()).
				Warn().Err(err).Str("directory", directoryAddr).Msg("directory registration failed")
		}
	}

	if len(bootstrap) > 0 {
		addrs := make([]types.BrokerAddr, 0, len(bootstrap))
		for _, addr := range bootstrap {
			host, p, ok := strings.Cut(addr, ":")
			if !ok {
				relaylog.Component("relay-broker").Warn().Str("addr", addr).Msg("malformed bootstrap address, skipped")
				continue
			}
			addrs = append(addrs, types.BrokerAddr{IP: host, Port: p})
		}
		srv.Bootstrap(addrs)
	}

	opsSrv := relayops.NewServer()
	opsSrv.MarkReady()
	if metricsPort != "0" {
		go func() {
			if err := opsSrv.Start(":" + metricsPort); err != nil {
				relaylog.Component("relay-broker").Warn().Err(err).Msg("ops server stopped")
			}
		}()
	}

	fmt.Printf("relay-broker %s listening on :%s\n", self.String(), port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("broker server stopped: %w", err)
	}

	return ln.Close()
}

// registerWithDirectory announces self to the directory and dials back
// every broker the directory already knows about.
func registerWithDirectory(srv *broker.Server, self types.BrokerAddr, directoryAddr string) error {
	conn, err := net.Dial("tcp", directoryAddr)
	if err != nil {
		return fmt.Errorf("dial directory: %w", err)
	}
	defer conn.Close()

	req := types.DirectoryRegisterRequest{UserType: types.RoleBroker, IP: self.IP, Port: self.Port}
	if err := wire.NewEncoder(conn).WriteFrame(req); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	var resp types.DirectoryRegisterResponse
	if err := wire.NewDecoder(conn).ReadFrame(&resp); err != nil {
		return fmt.Errorf("read register response: %w", err)
	}

	for _, addr := range resp.Brokers {
		if addr != self {
			srv.DialPeer(addr)
		}
	}
	return nil
}

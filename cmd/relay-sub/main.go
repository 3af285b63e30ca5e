// Command relay-sub is the subscriber CLI: it subscribes to and
// unsubscribes from topics, lists what's available, and prints broadcast
// and deleteNotify pushes as they arrive.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/relay/pkg/pubsubclient"
	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay-sub NAME",
	Short: "Interactive subscriber client for the relay mesh",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriber,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().String("broker", "", "Broker address to connect to directly (host:port)")
	rootCmd.Flags().StringP("directory", "d", "", "Directory address to pick a broker from (host:port)")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	relaylog.Init(relaylog.Config{Level: relaylog.Level(level), JSONOutput: jsonOutput})
}

func resolveBroker(cmd *cobra.Command, role types.Role) (string, error) {
	broker, _ := cmd.Flags().GetString("broker")
	if broker != "" {
		return broker, nil
	}

	directory, _ := cmd.Flags().GetString("directory")
	if directory == "" {
		return "", fmt.Errorf("one of --broker or --directory is required")
	}

	brokers, err := pubsubclient.QueryDirectory(directory, role)
	if err != nil {
		return "", fmt.Errorf("query directory: %w", err)
	}
	chosen, err := pubsubclient.PickBroker(brokers)
	if err != nil {
		return "", err
	}
	return chosen.String(), nil
}

func runSubscriber(cmd *cobra.Command, args []string) error {
	name := args[0]

	brokerAddr, err := resolveBroker(cmd, types.RoleSubscriber)
	if err != nil {
		return err
	}

	session, err := pubsubclient.DialSubscriber(brokerAddr, name)
	if err != nil {
		return fmt.Errorf("connect to broker %s: %w", brokerAddr, err)
	}
	defer session.Close()

	session.OnPush = printPush

	fmt.Printf("connected to %s as subscriber %q\n", brokerAddr, name)
	printSubscriberHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)

		var resp types.ResponseFrame
		var cmdErr error

		switch fields[0] {
		case "subscribe":
			if len(fields) < 2 {
				fmt.Println("usage: subscribe <topic-id>")
				continue
			}
			resp, cmdErr = session.Subscribe(fields[1])
		case "unsubscribe":
			if len(fields) < 2 {
				fmt.Println("usage: unsubscribe <topic-id>")
				continue
			}
			resp, cmdErr = session.Unsubscribe(fields[1])
		case "list":
			resp, cmdErr = session.List()
		case "current":
			resp, cmdErr = session.ShowCurrentSubscription()
		case "help":
			printSubscriberHelp()
			continue
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unrecognized command %q\n", fields[0])
			continue
		}

		if cmdErr != nil {
			fmt.Printf("error: %v\n", cmdErr)
			continue
		}
		printResponse(resp)
	}
}

func printSubscriberHelp() {
	fmt.Println("commands: subscribe <topic-id> | unsubscribe <topic-id> | list | current | quit")
}

func printResponse(resp types.ResponseFrame) {
	if resp.Result == "success" {
		fmt.Printf("ok: %v\n", resp.Detail)
	} else {
		fmt.Printf("failed: %v\n", resp.Detail)
	}
}

// printPush renders an asynchronous broadcast or deleteNotify frame. It
// runs on the session's receiver goroutine, so it only formats and writes —
// it must never block or call back into the session (pubsubclient's
// contract for OnPush).
func printPush(messageType types.MessageType, raw []byte) {
	switch messageType {
	case types.MessageBroadcast:
		var frame types.BroadcastFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		fmt.Printf("\n[%s] %s: %s\n> ", frame.TopicID, frame.Publisher, frame.Message)
	case types.MessageDeleteNotify:
		var frame types.DeleteNotifyFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		ids := make([]string, 0, len(frame.DeletedTopics))
		for _, t := range frame.DeletedTopics {
			ids = append(ids, t.ID)
		}
		fmt.Printf("\ntopic(s) deleted: %s\n> ", strings.Join(ids, ", "))
	}
}

// Command relay-pub is the publisher CLI: it creates topics, publishes
// messages, deletes topics, and checks subscriber counts against a single
// broker connection.
package main

import (
	"bufio"
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
	Use:   "relay-pub NAME",
	Short: "Interactive publisher client for the relay mesh",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublisher,
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

// resolveBroker picks the broker to connect to: a direct --broker address
// wins if given, otherwise a --directory address is queried and one broker
// is picked at random from the result.
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

func runPublisher(cmd *cobra.Command, args []string) error {
	name := args[0]

	brokerAddr, err := resolveBroker(cmd, types.RolePublisher)
	if err != nil {
		return err
	}

	client, err := pubsubclient.Dial(brokerAddr, types.RolePublisher, name)
	if err != nil {
		return fmt.Errorf("connect to broker %s: %w", brokerAddr, err)
	}
	defer client.Close()

	fmt.Printf("connected to %s as publisher %q\n", brokerAddr, name)
	printPublisherHelp()

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
		fields := strings.SplitN(line, " ", 3)

		var resp types.ResponseFrame
		var cmdErr error

		switch fields[0] {
		case "create":
			if len(fields) < 3 {
				fmt.Println("usage: create <topic-id> <title>")
				continue
			}
			if err := pubsubclient.ValidateTopicID(fields[1]); err != nil {
				fmt.Println(err)
				continue
			}
			resp, cmdErr = client.CreateTopic(fields[1], fields[2])
		case "publish":
			if len(fields) < 3 {
				fmt.Println("usage: publish <topic-id> <message>")
				continue
			}
			resp, cmdErr = client.Publish(fields[1], fields[2])
		case "delete":
			if len(fields) < 2 {
				fmt.Println("usage: delete <topic-id>")
				continue
			}
			resp, cmdErr = client.DeleteTopic(fields[1])
		case "count":
			resp, cmdErr = client.CountSubscribers()
		case "help":
			printPublisherHelp()
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

func printPublisherHelp() {
	fmt.Println("commands: create <topic-id> <title> | publish <topic-id> <message> | delete <topic-id> | count | quit")
}

func printResponse(resp types.ResponseFrame) {
	if resp.Result == "success" {
		fmt.Printf("ok: %v\n", resp.Detail)
	} else {
		fmt.Printf("failed: %v\n", resp.Detail)
	}
}

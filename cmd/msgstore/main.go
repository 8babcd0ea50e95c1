package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/messagestore"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "msgstore",
	Short: "msgstore - Message store client for JetStream",
	Long: `msgstore drives a JetStream-backed message store: publish typed
events and commands with dedup ids, replay subjects through projections,
run durable subscriptions with bounded retries and dead-lettering, and
administer the backing streams.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"msgstore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("nats-url", nats.DefaultURL, "NATS server URL")
	rootCmd.PersistentFlags().String("prefix", "", "Subject/stream prefix for every operation")
	rootCmd.PersistentFlags().Bool("create-missing-streams", false, "Create streams that do not exist yet")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(waitForCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// connectStore dials NATS per the global flags and wraps the connection
// in a message store
func connectStore(cmd *cobra.Command) (*messagestore.MessageStore, *nats.Conn, error) {
	natsURL, _ := cmd.Flags().GetString("nats-url")
	prefix, _ := cmd.Flags().GetString("prefix")
	createStreams, _ := cmd.Flags().GetBool("create-missing-streams")

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %v", natsURL, err)
	}
	store, err := messagestore.Connect(nc, messagestore.Config{
		Prefix:               prefix,
		CreateMissingStreams: createStreams,
	})
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return store, nc, nil
}

// Stream commands
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Manage backing streams",
}

var streamEnsureCmd = &cobra.Command{
	Use:   "ensure [category]",
	Short: "Verify a stream covers the category, creating it if allowed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
		maxMsgSize, _ := cmd.Flags().GetInt32("max-msg-size")

		store, nc, err := connectStore(cmd)
		if err != nil {
			return err
		}
		defer nc.Close()

		if err := store.EnsureStream(args[0],
			messagestore.WithMaxBytesOnCreate(maxBytes),
			messagestore.WithMaxMsgSizeOnCreate(maxMsgSize),
		); err != nil {
			return err
		}
		fmt.Printf("✓ Stream for category %q is in place\n", args[0])
		return nil
	},
}

func init() {
	streamEnsureCmd.Flags().Int64("max-bytes", messagestore.DefaultMaxBytesOnCreate, "Stream size cap applied on creation")
	streamEnsureCmd.Flags().Int32("max-msg-size", messagestore.DefaultMaxMsgSizeOnCreate, "Message size cap applied on creation")
	streamCmd.AddCommand(streamEnsureCmd)
}

// Publish command
var publishCmd = &cobra.Command{
	Use:   "publish [subject] [type] [data-json]",
	Short: "Publish a typed message to a subject",
	Long: `Publish a message of the given type to the subject (prefixed per
--prefix). Data comes from the inline JSON argument or from --data-file
(YAML or JSON). Every publish carries a dedup id; pass --msg-id to pick
one, otherwise a random UUID is generated.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgID, _ := cmd.Flags().GetString("msg-id")
		dataFile, _ := cmd.Flags().GetString("data-file")
		originSubject, _ := cmd.Flags().GetString("origin-subject")
		traceID, _ := cmd.Flags().GetString("trace-id")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		data := map[string]any{}
		switch {
		case dataFile != "":
			raw, err := os.ReadFile(dataFile)
			if err != nil {
				return fmt.Errorf("failed to read data file: %v", err)
			}
			if err := yaml.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("failed to parse data file: %v", err)
			}
		case len(args) == 3:
			if err := json.Unmarshal([]byte(args[2]), &data); err != nil {
				return fmt.Errorf("failed to parse data argument: %v", err)
			}
		}

		var metadata *message.Metadata
		if originSubject != "" || traceID != "" {
			metadata = &message.Metadata{OriginSubject: originSubject, TraceID: traceID}
		}
		if msgID == "" {
			msgID = uuid.NewString()
		}

		store, nc, err := connectStore(cmd)
		if err != nil {
			return err
		}
		defer nc.Close()

		ack, err := store.Publish(context.Background(), args[0],
			message.NewWithMetadata(args[1], data, metadata),
			messagestore.WithMsgID(msgID),
			messagestore.WithPublishTimeout(timeout),
		)
		if err != nil {
			return err
		}

		if ack.Duplicate {
			fmt.Printf("✓ Duplicate of msg-id %s already in stream %s (seq %d)\n", msgID, ack.Stream, ack.Seq)
		} else {
			fmt.Printf("✓ Published to stream %s at seq %d (msg-id %s)\n", ack.Stream, ack.Seq, msgID)
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().String("msg-id", "", "Dedup id (random UUID if empty)")
	publishCmd.Flags().String("data-file", "", "YAML/JSON file holding the data payload")
	publishCmd.Flags().String("origin-subject", "", "originSubject metadata field")
	publishCmd.Flags().String("trace-id", "", "traceId metadata field")
	publishCmd.Flags().Duration("timeout", messagestore.DefaultPublishTimeout, "Publish ack timeout")
}

// Wait-for command
var waitForCmd = &cobra.Command{
	Use:   "wait-for [subject]",
	Short: "Wait for a message on a subject and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgType, _ := cmd.Flags().GetString("type")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		store, nc, err := connectStore(cmd)
		if err != nil {
			return err
		}
		defer nc.Close()

		msg, err := store.WaitFor(args[0], func(m message.Message) bool {
			return msgType == "" || m.Type == msgType
		}, messagestore.WithWaitForTimeout(timeout))
		if err != nil {
			return err
		}
		fmt.Println(msg.String())
		return nil
	},
}

func init() {
	waitForCmd.Flags().String("type", "", "Only accept messages of this type")
	waitForCmd.Flags().Duration("timeout", messagestore.DefaultWaitForTimeout, "How long to wait")
}

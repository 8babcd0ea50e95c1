package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/messagestore"
	"github.com/zencastr/message-store/pkg/projection"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [subject]",
	Short: "Replay a subject and print the collected messages",
	Long: `Replay every message on the subject through a collecting projection
and print the folded result as a JSON array. --types names the message
types to collect; with --until-seq the replay stops at the given stream
sequence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, _ := cmd.Flags().GetStringSlice("types")
		untilSeq, _ := cmd.Flags().GetUint64("until-seq")
		if len(types) == 0 {
			return fmt.Errorf("at least one message type is required, pass --types")
		}

		store, nc, err := connectStore(cmd)
		if err != nil {
			return err
		}
		defer nc.Close()

		return runFetch(context.Background(), store, args[0], types, untilSeq)
	},
}

func runFetch(ctx context.Context, store *messagestore.MessageStore, subject string, types []string, untilSeq uint64) error {
	collect := func(state []map[string]any, msg *message.Incoming) []map[string]any {
		return append(state, map[string]any{
			"type":    msg.Type,
			"subject": msg.Subject,
			"seq":     msg.Seq,
			"data":    msg.Data,
		})
	}
	handlers := make(map[string]projection.Handler[[]map[string]any], len(types))
	for _, msgType := range types {
		handlers[msgType] = collect
	}
	proj := projection.New(func() []map[string]any { return []map[string]any{} }, handlers)

	opts := []messagestore.FetchOption{}
	if untilSeq > 0 {
		opts = append(opts, messagestore.WithUntilSeq(untilSeq))
	}
	collected, err := messagestore.Fetch(ctx, store, subject, proj, opts...)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(collected, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	fetchCmd.Flags().StringSlice("types", nil, "Message types to collect")
	fetchCmd.Flags().Uint64("until-seq", 0, "Stop the replay at this stream sequence (inclusive)")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/messagestore"
	"github.com/zencastr/message-store/pkg/metrics"
	"github.com/zencastr/message-store/pkg/subscription"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [subject]",
	Short: "Run a durable subscription that logs matching messages",
	Long: `Run a durable pull subscription on the subject until interrupted.
Messages whose type is listed in --types are logged and acked; all other
types are acked and ignored. With --dead-letter, messages that exhaust
their retries are republished verbatim under the dead-letter subject.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		consumer, _ := cmd.Flags().GetString("consumer")
		types, _ := cmd.Flags().GetStringSlice("types")
		maxRetries, _ := cmd.Flags().GetInt("max-retries")
		unbounded, _ := cmd.Flags().GetBool("unbounded-retries")
		deadLetter, _ := cmd.Flags().GetString("dead-letter")
		reportInterval, _ := cmd.Flags().GetDuration("report-interval")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		if consumer == "" {
			return fmt.Errorf("a durable consumer name is required, pass --consumer")
		}
		if len(types) == 0 {
			return fmt.Errorf("at least one message type is required, pass --types")
		}

		store, nc, err := connectStore(cmd)
		if err != nil {
			return err
		}
		defer nc.Close()

		logger := log.WithComponent("msgstore-cli")
		handlers := make(map[string]subscription.Handler, len(types))
		for _, msgType := range types {
			handlers[msgType] = func(ctx context.Context, msg *message.Incoming) error {
				logger.Info().
					Str("type", msg.Type).
					Str("subject", msg.Subject).
					Uint64("seq", msg.Seq).
					Msg("Received message")
				fmt.Println(msg.String())
				return nil
			}
		}

		opts := []messagestore.SubscriptionOption{
			messagestore.WithReportInterval(reportInterval),
		}
		if unbounded {
			opts = append(opts, messagestore.WithUnboundedRetries())
		} else {
			opts = append(opts, messagestore.WithMaxRetries(maxRetries))
		}
		if deadLetter != "" {
			opts = append(opts, messagestore.WithDeadLetterSubject(deadLetter))
		}

		if metricsAddr != "" {
			go func() {
				http.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, nil); err != nil {
					logger.Error().Err(err).Msg("Metrics server failed")
				}
			}()
			fmt.Printf("✓ Metrics available at http://%s/metrics\n", metricsAddr)
		}

		sub := store.NewSubscription(args[0], consumer, handlers, opts...)
		sub.Start()
		fmt.Printf("✓ Subscribed to %s as consumer %s (Ctrl+C to stop)\n", args[0], consumer)

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nStopping subscription...")
		sub.Stop()
		fmt.Println("✓ Subscription stopped")
		return nil
	},
}

func init() {
	subscribeCmd.Flags().String("consumer", "", "Durable consumer name")
	subscribeCmd.Flags().StringSlice("types", nil, "Message types to handle")
	subscribeCmd.Flags().Int("max-retries", subscription.DefaultMaxRetries, "Redeliveries before a message is terminated")
	subscribeCmd.Flags().Bool("unbounded-retries", false, "Disable the redelivery bound")
	subscribeCmd.Flags().String("dead-letter", "", "Dead-letter subject for terminated messages")
	subscribeCmd.Flags().Duration("report-interval", subscription.DefaultReportInterval, "In-progress heartbeat period")
	subscribeCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

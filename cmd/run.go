package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/outboxd/config"
	"github.com/otherjamesbrown/outboxd/pkg/worker"
)

// newRunCommand creates the 'run' subcommand: a single tenant configured
// entirely from flags.
func newRunCommand(rt *appRuntime) *cobra.Command {
	var (
		pgURL              string
		kafkaURLs          string
		tableName          string
		columnName         string
		channelName        string
		topicName          string
		bufferSize         int
		notifyTimeoutMs    int64
		notifyTimeoutTotal int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forward a single outbox table to Kafka",
		Long: `Forward rows from one PostgreSQL outbox table to one Kafka topic.

All flags are optional; unset flags fall back to the documented defaults.
The command runs until a fatal error occurs and then exits non-zero.

Examples:
  # Everything on defaults
  outboxd run

  # A custom table on a custom database, two brokers
  outboxd run -p postgres://outbox@db:5432/outbox -t outbox_events \
      -k broker1:9092,broker2:9092 -w outbox`,
		Example: `  outboxd run
  outboxd run -p postgres://outbox@db:5432/outbox -b 500
  outboxd run --channel-name outbox.activity --notify-timeout 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := worker.NewBuilder().
				PgURL(pgURL).
				TableName(tableName).
				ColumnName(columnName).
				Channel(channelName).
				TopicName(topicName).
				BufferSize(bufferSize).
				KafkaBrokers(splitBrokers(kafkaURLs)).
				NotifyTimeout(time.Duration(notifyTimeoutMs) * time.Millisecond).
				NotifyTimeoutTotal(time.Duration(notifyTimeoutTotal) * time.Millisecond).
				Logger(rt.logger).
				Metrics(rt.metrics).
				Build()
			if err != nil {
				return err
			}
			return rt.runWorker(cmd.Context(), w)
		},
	}

	cmd.Flags().StringVarP(&pgURL, "pgurl", "p", config.DefaultPgURL, "PostgreSQL URL")
	cmd.Flags().StringVarP(&kafkaURLs, "kafka-urls", "k", "localhost:9092", "Comma-separated Kafka broker list")
	cmd.Flags().StringVarP(&tableName, "table-name", "t", config.DefaultTableName, "Outbox table name")
	cmd.Flags().StringVarP(&columnName, "column-name", "c", config.DefaultColumnName, "Payload column name")
	cmd.Flags().StringVarP(&channelName, "channel-name", "z", config.DefaultChannel, "Notification channel name")
	cmd.Flags().StringVarP(&topicName, "topic-name", "w", config.DefaultTopicName, "Kafka topic name")
	cmd.Flags().IntVarP(&bufferSize, "buffer-size", "b", config.DefaultBufferSize, "Batch size after which buffered messages are published")
	cmd.Flags().Int64VarP(&notifyTimeoutMs, "notify-timeout", "x", config.DefaultNotifyTimeout.Milliseconds(), "Single notification wait timeout (ms)")
	cmd.Flags().Int64VarP(&notifyTimeoutTotal, "notify-timeout-total", "X", config.DefaultNotifyTimeoutTotal.Milliseconds(), "Listening window timeout after which rows are recovered with a full scan (ms)")

	return cmd
}

// splitBrokers parses a comma-separated broker list, trimming whitespace.
func splitBrokers(urls string) []string {
	parts := strings.Split(urls, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

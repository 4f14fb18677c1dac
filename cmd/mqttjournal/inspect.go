package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-journal/internal/console"
	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/internal/persist"
	"github.com/nerrad567/mqtt-journal/internal/query"
)

// defaultInspectTail is how many messages inspect replays by default.
const defaultInspectTail = 10

type inspectOptions struct {
	filter string
	topic  string
	tail   int
	json   bool
}

func newInspectCmd(a *app) *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show statistics and recent messages from a saved journal",
		Long: `Loads a journal file written by monitor and prints per-topic statistics
followed by the most recent messages. No broker connection is made.

--filter takes an MQTT topic filter (+ and # wildcards); --topic selects
topics containing a substring, with "*" matching everything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInspect(a, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.filter, "filter", "", "MQTT topic filter, e.g. sensors/+/temp")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "topic substring, or * for all")
	cmd.Flags().IntVarP(&opts.tail, "tail", "n", defaultInspectTail, "number of recent messages to show (0 for none)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print statistics and messages as JSON")
	return cmd
}

// inspectReport is the --json output.
type inspectReport struct {
	Statistics query.Statistics `json:"statistics"`
	Messages   []persist.Record `json:"messages"`
}

func runInspect(a *app, path string, opts inspectOptions) error {
	entries, err := persist.LoadEntries(path)
	if err != nil {
		return err
	}

	if opts.filter != "" {
		entries = query.MatchFilter(entries, opts.filter)
	}
	if opts.topic != "" {
		entries = query.FilterByTopic(entries, opts.topic)
	}

	stats := query.Compute(entries)
	recent := query.Tail(entries, opts.tail)

	if opts.json {
		return writeInspectJSON(a, stats, recent)
	}

	printer := console.New(a.out, a.cfg.Console.Color)
	printer.Info("%s: %d messages on %d topics", path, stats.TotalMessages, stats.UniqueTopics)
	if stats.FirstMessageTime != nil && stats.LastMessageTime != nil {
		printer.Info("From %s to %s",
			stats.FirstMessageTime.Format("2006-01-02 15:04:05"),
			stats.LastMessageTime.Format("2006-01-02 15:04:05"))
	}

	topics := make([]string, 0, len(stats.TopicsCount))
	for topic := range stats.TopicsCount {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		fmt.Fprintf(a.out, "  %-40s %d\n", topic, stats.TopicsCount[topic]) //nolint:errcheck // terminal output
	}

	// Sequence numbers continue from the messages not shown.
	first := uint64(len(entries) - len(recent)) //nolint:gosec // len is never negative
	for i, e := range recent {
		printer.OnMessage(first+uint64(i)+1, e) //nolint:gosec // index is never negative
	}
	return nil
}

func writeInspectJSON(a *app, stats query.Statistics, recent []journal.Entry) error {
	report := inspectReport{
		Statistics: stats,
		Messages:   make([]persist.Record, len(recent)),
	}
	for i, e := range recent {
		report.Messages[i] = persist.NewRecord(e)
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

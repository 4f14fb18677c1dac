package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-journal/internal/console"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/publisher"
	"github.com/nerrad567/mqtt-journal/internal/session"
)

// ErrNoTopic is returned when publish has no --topic and no configured topics.
var ErrNoTopic = errors.New("no topic: pass --topic or configure mqtt.topics")

type publishOptions struct {
	file   string
	topic  string
	qos    int
	retain bool
	repeat int
	rate   float64
}

func newPublishCmd(a *app) *cobra.Command {
	var opts publishOptions

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a JSON payload file",
		Long: `Reads a JSON file, compacts it and publishes it to a topic. The payload
is validated before connecting, so a bad file never reaches the broker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("qos") {
				opts.qos = a.cfg.MQTT.QoS
			}
			return runPublish(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", publisher.DefaultPayloadFile, "JSON payload file")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "topic to publish to (default first of mqtt.topics)")
	cmd.Flags().IntVarP(&opts.qos, "qos", "q", 0, "QoS level 0, 1 or 2 (default mqtt.qos)")
	cmd.Flags().BoolVar(&opts.retain, "retain", false, "set the retain flag")
	cmd.Flags().IntVarP(&opts.repeat, "repeat", "n", 1, "number of times to publish")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "maximum messages per second (0 is unpaced)")
	return cmd
}

func runPublish(ctx context.Context, a *app, opts publishOptions) error {
	topic := opts.topic
	if topic == "" {
		if len(a.cfg.MQTT.Topics) == 0 {
			return ErrNoTopic
		}
		topic = a.cfg.MQTT.Topics[0]
	}
	if opts.qos < 0 || opts.qos > 2 {
		return fmt.Errorf("%w: %d", mqtt.ErrInvalidQoS, opts.qos)
	}

	// Fail on a bad payload before touching the network.
	if _, err := publisher.LoadPayload(opts.file); err != nil {
		return err
	}

	printer := console.New(a.out, a.cfg.Console.Color)

	client, err := mqtt.New(a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(a.log)
	defer client.Close() //nolint:errcheck // Close always returns nil

	sess := session.New(client, session.Options{
		ConnectTimeout: a.cfg.GetConnectTimeout(),
		BufferSize:     a.cfg.Journal.BufferSize,
		Logger:         a.log,
	})
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", client.BrokerURL(), err)
	}
	defer sess.Disconnect()

	sent, err := publisher.PublishFile(ctx, sess, opts.file, topic, byte(opts.qos), opts.retain, publisher.Options{ //nolint:gosec // range checked above
		Repeat: opts.repeat,
		Rate:   opts.rate,
	})
	if err != nil {
		printer.Error("Published %d before failure: %v", sent, err)
		return err
	}

	printer.Success("Published %s to %s (%d sent, QoS %d)", opts.file, topic, sent, opts.qos)
	a.log.Info("payload published", "file", opts.file, "topic", topic, "count", sent)
	return nil
}

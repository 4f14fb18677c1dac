// Package logging provides structured logging for mqtt-journal on top of
// log/slog.
//
// Every entry carries service and version attributes. Three formats are
// available:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text, console
//	  output: "stderr"   # stdout, stderr, discard
//
// "console" writes aligned "time | LEVEL | message key=value" lines,
// coloured when the destination is a terminal.
//
// Received messages are printed to stdout by the console package; log
// output defaults to stderr so the two streams stay separate.
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("subscribed", "topic", "sensors/#", "qos", 1)
//
// Never log broker passwords.
package logging

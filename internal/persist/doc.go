// Package persist writes journal snapshots to JSON files and reads them back.
//
// The on-disk format is a JSON array of records:
//
//	[
//	  {
//	    "timestamp": "2026-03-14T09:26:53.123456+01:00",
//	    "topic": "sensors/kitchen/temperature",
//	    "payload": "{\"value\": 21.5}",
//	    "qos": 1,
//	    "retain": false
//	  }
//	]
//
// Payloads are stored as text. Bytes that are not valid UTF-8 are replaced
// with U+FFFD, so binary payloads do not survive a round trip byte for byte.
//
// Save writes to a temporary file in the destination directory and renames
// it into place, so a failed save never leaves a truncated file behind.
package persist

// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout (text or JSON) and, when journald is running, to the
// journal with identifier "vidbuf". Each module gets its own logger whose
// level can be overridden in configuration or changed at runtime:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{"capture": "debug"},
//	})
//
//	logger := logging.GetLogger("capture").With("device", "/dev/video0")
//	logger.Info("Streaming started", "buffers", 4)
//
// Modules used by vidbuf: capture, linuxav, devices, metrics, config, systemd, main.
//
// Viewing journal output:
//
//	journalctl -t vidbuf -f
//	journalctl -t vidbuf MODULE=capture DEVICE=/dev/video0
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	linuxav = "debug"
package logging

// Command scribed runs the scribe daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"scribe/internal/config"
	"scribe/internal/daemonrun"
)

func main() {
	var configPath string
	var socketPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&socketPath, "socket", "", "daemon socket path override")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if socket := strings.TrimSpace(socketPath); socket != "" {
		cfg.Paths.SocketPath = socket
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		os.Exit(1)
	}
}

// Command flowtraced runs the reference-counted buffer lifecycle tracer as
// a standalone daemon: load configuration, wire the intake engine, the
// scheduler pump, the configured handlers, and the read-only ops HTTP
// surface, then block until SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/main.go: flag-or-env config path
// resolution, then app.New/app.Run.
package main

import (
	"flag"
	"fmt"
	"os"

	"flowtraced/internal/app"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("FLOWTRACED_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/etc/flowtraced/config.yaml"
		}
	}

	fmt.Printf("flowtraced: using configuration file %s\n", configFile)

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowtraced: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowtraced: %v\n", err)
		os.Exit(1)
	}
}

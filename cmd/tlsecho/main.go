// File: cmd/tlsecho/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// tlsecho runs the hioload-tls echo server or an interactive client.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-tls/api"
)

var (
	addr     string
	useTLS   bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tlsecho",
	Short: "TLS capable echo server and client",
	Long: `tlsecho drives the hioload-tls server and client.

  tlsecho server --tls            serve echo over TLS on 127.0.0.1:5044
  tlsecho client --tls --insecure send stdin lines and print the replies`,
	SilenceUsage: true,
}

func main() {
	os.Exit(execute())
}

func execute() int {
	defer memguard.Purge()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", api.Endpoint{Address: "127.0.0.1", Port: api.DefaultPort}.String(),
		"host:port to listen on or connect to")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", false, "Enable TLS")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func endpoint() (api.Endpoint, error) {
	return api.ParseEndpoint(addr)
}

func newLogger() (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

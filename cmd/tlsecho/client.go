package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-tls/lowlevel/client"
)

var (
	caFile     string
	serverName string
	insecure   bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Send stdin lines to the echo server and print the replies",
	RunE:  runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().StringVar(&caFile, "ca", "", "PEM file with trusted roots (default: system pool)")
	clientCmd.Flags().StringVar(&serverName, "server-name", "", "Name to verify in the server certificate (default: host of --addr)")
	clientCmd.Flags().BoolVar(&insecure, "insecure", false, "Skip server certificate verification")
}

func runClient(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ep, err := endpoint()
	if err != nil {
		return err
	}
	cfg := client.DefaultConfig()
	cfg.Endpoint = ep
	cfg.TLS = useTLS
	cfg.RootCAFile = caFile
	cfg.ServerName = serverName
	cfg.InsecureSkipVerify = insecure
	cfg.Logger = log

	c := client.NewClient(cfg)
	if err := c.OpenContext(cmd.Context()); err != nil {
		return err
	}
	defer c.Close()
	if c.Secure() {
		fmt.Fprintln(cmd.ErrOrStderr(), c.DescribePeer())
	}

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		if line == "" {
			continue
		}
		if err := c.WriteString(line); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		var got []byte
		for len(got) < len(line) {
			b, err := c.Read()
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			got = append(got, b...)
		}
		fmt.Fprintln(out, string(got))
	}
	return in.Err()
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "zusapi",
	Short:   "ZUS Coffee conversational API server",
	Version: version,
}

func main() {
	rootCmd.AddCommand(serveCmd, seedCmd, mcpCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

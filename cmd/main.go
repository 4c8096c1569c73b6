package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "damagegraph"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Structural damage records across ontology, BIM and graph",
		Long: `damagegraph carries one damage detection through three representations:
an RDF ontology graph, an IFC building model and a Neo4j epoch timeline.

Run "serve" for the HTTP API, or use the offline commands to project,
link and ingest files directly.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		serveCmd(),
		projectCmd(),
		linkCmd(),
		ingestCmd(),
		sampleIFCCmd(),
		tokenCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/archive"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/provision"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/replicator"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/scripts"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test a connection string",
	Long: `Parse a connection string, connect with the fallback chain, and print the
server product, version, current database, and its base tables.

Examples:
  replicator test --conn "Server=db1;Database=Sales;User Id=svc;Password=..."
  replicator test --conn-file prod.conn`,
	Run: func(cmd *cobra.Command, _ []string) {
		conn, _ := cmd.Flags().GetString("conn")
		connFile, _ := cmd.Flags().GetString("conn-file")

		if conn == "" && connFile == "" {
			log.Fatal("Either --conn or --conn-file must be provided")
		}
		if connFile != "" {
			content, err := os.ReadFile(connFile)
			if err != nil {
				log.Fatalf("Failed to read connection file: %v", err)
			}
			conn = string(content)
		}

		logger := newLogger()
		registry := state.NewRegistry(1, time.Minute)
		orch := replicator.New(logger, registry, archive.New("", "", logger), provision.New(logger), nil, scripts.Run)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		info, err := orch.TestConnection(ctx, conn)
		if err != nil {
			log.Fatalf("Connection test failed: %v", err)
		}

		fmt.Printf("Product:  %s\n", info.Product)
		fmt.Printf("Version:  %s\n", info.Version)
		fmt.Printf("Database: %s\n", info.Database)

		if len(info.Tables) == 0 {
			fmt.Println("No base tables found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE")
		fmt.Fprintln(w, "-----")
		for _, table := range info.Tables {
			fmt.Fprintf(w, "%s\n", table)
		}
		fmt.Fprintln(w, "-----")
		fmt.Fprintf(w, "TOTAL\t%d tables\n", len(info.Tables))
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringP("conn", "c", "", "Connection string to test")
	testCmd.Flags().String("conn-file", "", "File containing the connection string")
}

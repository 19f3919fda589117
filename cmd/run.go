package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/archive"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/provision"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/replicator"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/scripts"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/store"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a one-shot replication from source to target",
	Long: `Replicate a database from a source server to a target server without the
HTTP API: export an archive, provision the target database, import, and run
any configuration scripts.

Examples:
  replicator run --source "Server=db1;Database=Sales;User Id=svc;Password=..." --target "Server=db2;Database=Sales_copy;User Id=svc;Password=..."
  replicator run -s "..." -t "..." --script fix_logins.sql --script seed.sql
  replicator run -s "..." -t "..." --sqlpackage /opt/sqlpackage/sqlpackage --keep-archive`,
	Run: func(cmd *cobra.Command, _ []string) {
		sourceConn, _ := cmd.Flags().GetString("source")
		targetConn, _ := cmd.Flags().GetString("target")
		scriptFiles, _ := cmd.Flags().GetStringSlice("script")
		toolPath, _ := cmd.Flags().GetString("sqlpackage")
		tempDir, _ := cmd.Flags().GetString("temp-dir")
		keepArchive, _ := cmd.Flags().GetBool("keep-archive")

		if sourceConn == "" || targetConn == "" {
			log.Fatal("Both --source and --target connection strings must be provided")
		}

		scriptBodies := make([]string, 0, len(scriptFiles))
		for _, file := range scriptFiles {
			body, err := os.ReadFile(file)
			if err != nil {
				log.Fatalf("Failed to read script %s: %v", file, err)
			}
			scriptBodies = append(scriptBodies, string(body))
		}

		logger := newLogger()
		registry := state.NewRegistry(1, time.Minute)
		adapter := archive.New(toolPath, tempDir, logger)
		orch := replicator.New(logger, registry, adapter, provision.New(logger), nil, scripts.Run)

		start := time.Now()
		jobID, err := orch.Start(&replicator.Request{
			SourceConnStr: sourceConn,
			TargetConnStr: targetConn,
			Scripts:       scriptBodies,
			Settings:      store.Settings{KeepArchive: keepArchive},
		})
		if err != nil {
			log.Fatalf("Failed to start replication: %v", err)
		}

		snap := waitForJob(orch, jobID)
		duration := time.Since(start)

		switch snap.Status {
		case state.StatusCompleted:
			logger.Success("%s after %s", snap.Message, utils.FormatDuration(duration))
		case state.StatusCancelled:
			log.Fatalf("Replication cancelled after %s", utils.FormatDuration(duration))
		default:
			log.Fatalf("Replication failed after %s: %s", utils.FormatDuration(duration), snap.Error)
		}
	},
}

// waitForJob polls the job, echoing progress messages as they change.
func waitForJob(orch *replicator.Orchestrator, jobID string) state.Snapshot {
	lastMessage := ""
	for {
		snap, err := orch.Status(jobID)
		if err != nil {
			log.Fatalf("Lost track of job %s: %v", jobID, err)
		}
		if snap.Message != lastMessage {
			fmt.Printf("  [%3d%%] %s\n", snap.Progress, snap.Message)
			lastMessage = snap.Message
		}
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("source", "s", "", "Source connection string (Server=...;Database=...;User Id=...;Password=...)")
	runCmd.Flags().StringP("target", "t", "", "Target connection string; the database field names the requested target")
	runCmd.Flags().StringSlice("script", []string{}, "SQL script file to run after import, in order (repeatable)")
	runCmd.Flags().String("sqlpackage", "", "Path to the sqlpackage executable (default: resolved from PATH)")
	runCmd.Flags().String("temp-dir", "", "Directory for exported archives (default: OS temp dir)")
	runCmd.Flags().Bool("keep-archive", false, "Keep the exported archive instead of deleting it after import")
}

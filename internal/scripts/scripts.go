// Package scripts executes operator-supplied post-migration scripts against
// the provisioned target database, in order, failing fast.
package scripts

import (
	"context"
	"fmt"
	"strings"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/connstr"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// previewLen bounds how much of a failing script is echoed into the error.
const previewLen = 80

// ScriptError reports the first script that failed. Index is 1-based, the way
// an operator counts scripts.
type ScriptError struct {
	Index   int
	Preview string
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %d failed (%q): %v", e.Index, e.Preview, e.Err)
}

// Unwrap lets callers match with errors.Is(err, utils.ErrScriptFailed).
func (e *ScriptError) Unwrap() error {
	return utils.ErrScriptFailed
}

// Preview returns the first previewLen characters of a script, collapsed to a
// single line.
func Preview(script string) string {
	s := strings.Join(strings.Fields(script), " ")
	if len(s) > previewLen {
		s = s[:previewLen] + "..."
	}
	return s
}

// Run executes the scripts sequentially over one connection. Scripts may have
// ordering dependencies (DDL before DML), so there is no parallelism. The
// first failure aborts the run. An empty list is a no-op that never opens a
// connection.
func Run(ctx context.Context, rawConnStr string, scriptBodies []string, logger utils.Logger) error {
	if len(scriptBodies) == 0 {
		return nil
	}

	cfg, err := connstr.Parse(rawConnStr)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrScriptFailed, err)
	}
	db, err := connstr.Connect(ctx, cfg, rawConnStr, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrScriptFailed, err)
	}
	defer db.Close()

	for i, body := range scriptBodies {
		logger.Info("Executing script %d/%d", i+1, len(scriptBodies))
		if _, err := db.ExecContext(ctx, body); err != nil {
			return &ScriptError{Index: i + 1, Preview: Preview(body), Err: err}
		}
	}
	logger.Success("All %d scripts executed", len(scriptBodies))
	return nil
}

// SPDX-License-Identifier: MIT

package recording

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/scorecast/scorecast/internal/log"
)

// writeRecording persists the session file atomically and durably:
// renameio writes to a temp file, fsyncs, then renames over the target,
// so readers never observe a partial write.
func writeRecording(ctx context.Context, path string, rec *Recording) error {
	logger := log.WithComponentFromContext(ctx, "recorder")

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending recording file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if it was never committed.
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending recording file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("write recording data: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace recording file: %w", err)
	}
	return nil
}

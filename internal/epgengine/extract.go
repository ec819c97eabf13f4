package epgengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// openAndExtract opens a tuner on (channelType, channel) for user "epg",
// bounded by timeLimit when positive, pipes its byte stream through the
// external tool at toolPath, and returns the tool's captured stdout.
// The tuner is always stopped before returning, whatever the outcome.
func (e *Engine) openAndExtract(ctx context.Context, channelType tunertypes.ChannelType, channel, toolPath string, timeLimit time.Duration) ([]byte, error) {
	openCtx := ctx
	if timeLimit > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	sub, err := e.tunerMgr.OpenTuner(openCtx, channelType, channel, tunertypes.Background("epg"))
	if err != nil {
		return nil, fmt.Errorf("epgengine: open tuner for %s %s: %w", channelType, channel, err)
	}
	defer e.tunerMgr.StopStreaming(context.Background(), sub.ID)

	return runExtractor(openCtx, toolPath, sub.Stream)
}

// runExtractor spawns toolPath, feeds it stream on stdin until stream closes
// or ctx is done, and returns everything it wrote to stdout. Matches the
// tuner-time-limit cancellation semantics of spec.md §5: when the context
// deadline elapses the extractor is killed and whatever it had already
// written is still returned to the caller.
func runExtractor(ctx context.Context, toolPath string, stream <-chan []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, toolPath)

	pr, pw := io.Pipe()
	cmd.Stdin = pr

	var out bytes.Buffer
	cmd.Stdout = &out

	go func() {
		defer pw.Close()
		for {
			select {
			case chunk, ok := <-stream:
				if !ok {
					return
				}
				if _, err := pw.Write(chunk); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Time limit reached: this is the normal end-of-sweep path, not
			// a failure, so whatever the extractor already wrote is kept.
			return out.Bytes(), nil
		}
		return out.Bytes(), fmt.Errorf("epgengine: run %s: %w", toolPath, err)
	}
	return out.Bytes(), nil
}

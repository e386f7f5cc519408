package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Concat joins already-normalized clips into one video via the concat
// demuxer. Inputs must share codec, resolution, frame rate and audio layout,
// which lets the join run with stream copy.
func (e *Executor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no input clips")
	}

	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	var list strings.Builder
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("concat: resolve %s: %w", input, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("concat: write list file: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}
	if err := e.run(ctx, args...); err != nil {
		os.Remove(output)
		return fmt.Errorf("concat %d clips: %w", len(inputs), err)
	}

	if err := e.ValidateOutput(ctx, output); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

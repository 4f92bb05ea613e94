package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/source"
)

var recordFlags struct {
	out    string
	frames int
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record extractor frames to a replay file",
	Long: `Run the configured landmark extractor (client.extractor_command) and write
its frames as landmark envelopes, one per line, for "mudra stream --replay".
Recording stops after --frames frames or on interrupt.`,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.out, "out", "o", "frames.jsonl", "replay file to write")
	f.IntVarP(&recordFlags.frames, "frames", "n", 0, "stop after this many frames (0 records until interrupted)")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	ext, err := source.NewExtractor(cfg.Client.ExtractorCommand, cfg.Client.IdleTimeout, logger)
	if err != nil {
		return err
	}
	defer ext.Close()

	out, err := os.Create(recordFlags.out)
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	defer out.Close()
	rec := source.NewRecorder(out)

	var seq uint64
	for recordFlags.frames == 0 || int(seq) < recordFlags.frames {
		f, err := ext.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		seq++
		f.SequenceID = seq
		f.Timestamp = time.Now()
		if err := rec.Write(f); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}

	logger.Info("recording finished", "path", recordFlags.out, "frames", seq)
	return out.Sync()
}

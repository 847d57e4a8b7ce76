// batch-simulate runs one simulation batch locally: it renders every
// page of the given PDFs, derives the five color-vision renditions,
// and writes a single zip archive.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ykori/colorvisionflow/internal/governor"
	"github.com/ykori/colorvisionflow/internal/pipeline"
	"github.com/ykori/colorvisionflow/internal/render"
)

var (
	outPath string
	scale   float64
)

func main() {
	// Load .env file if it exists (silently ignore if not found).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "batch-simulate [pdf files or directories...]",
		Short: "Render PDF pages as color-vision-deficiency simulations",
		Long: "batch-simulate rasterizes every page of the given PDFs and derives five\n" +
			"renditions per page (common, protanopia, deuteranopia, tritanopia,\n" +
			"achromat), packaged into one zip archive.",
		Args: cobra.MinimumNArgs(1),
		RunE: run,
	}
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "processed_images.zip", "output archive path")
	rootCmd.Flags().Float64VarP(&scale, "scale", "s", 1.0, "render scale in [0.1, 1.0]")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}

	limits := governor.DefaultLimits()
	pl := pipeline.New(render.NewFitzRenderer(), limits, pipeline.SlogReporter{})

	result, err := pl.Run(cmd.Context(), inputs, scale)
	if errors.Is(err, pipeline.ErrBatchEmpty) {
		return fmt.Errorf("no processable input (encrypted, corrupt or empty documents)")
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, result.Archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	slog.Info("Batch complete.",
		"archive", outPath,
		"entries", result.Entries,
		"completedSteps", result.CompletedSteps,
		"totalSteps", result.TotalSteps,
	)
	return nil
}

// collectInputs reads the named PDFs; directories contribute their
// immediate *.pdf children. The batch file cap is enforced later by
// the governor, not here.
func collectInputs(args []string) ([]pipeline.Input, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}

	inputs := make([]pipeline.Input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		inputs = append(inputs, pipeline.Input{Name: filepath.Base(p), Data: data})
	}
	return inputs, nil
}

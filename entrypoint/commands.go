package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"tashkeela.com/diac/corpus"
	"tashkeela.com/diac/decoder"
	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/store"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

// openModel loads the profile's model from its store. With mustExist an
// empty store is a *types.MissingResourceError.
func openModel(ctx context.Context, profile types.RunConfig, mustExist bool) (*ngram.Model, func() error, error) {
	s, closeStore, err := store.FromConfig(profile.Store)
	if err != nil {
		return nil, nil, err
	}
	m, loaded, err := store.Open(ctx, s, profile.Order, types.DefaultTagSet())
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	if mustExist && !loaded {
		_ = closeStore()
		return nil, nil, &types.MissingResourceError{
			Path: fmt.Sprintf("%s %s", profile.Store.Kind, store.BlobName(profile.Order)),
		}
	}
	return m, closeStore, nil
}

func writeFileStats(w io.Writer, stats []pipeline.FileStats) {
	for _, s := range stats {
		fmt.Fprintf(w, "%s: %d words, %d errors\n", s.Name, s.Words, s.Errors)
	}
	total := pipeline.Totals(stats)
	fmt.Fprintf(w, "total: %d words, %d errors\n", total.Words, total.Errors)
}

func newTrainCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "train [dir]",
		Short: "Count the marked words of a directory into the stored model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, closeStore, err := store.FromConfig(profile.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			m, loaded, err := store.Open(ctx, s, profile.Order, types.DefaultTagSet())
			if err != nil {
				return err
			}
			trainLogger := logger.NewLogger("Train")
			trainLogger.Info().Bool("resumed", loaded).Int("entries", m.Len()).Str("profile", profile.Name).Msg("Opened model")

			stats, err := pipeline.TrainParallel(ctx, argOr(args, 0, profile.Data.TrainDir), m, profile.TrainWorkers)
			if err != nil {
				return err
			}
			writeFileStats(cmd.OutOrStdout(), stats)
			if err := s.Save(ctx, m); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			trainLogger.Info().Int("entries", m.Len()).Msg("Saved model")
			return nil
		},
	}
}

func newDecodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [in] [out]",
		Short: "Mark every file of a directory into a mirror directory",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			m, closeStore, err := openModel(cmd.Context(), profile, true)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := pipeline.DecodeDir(
				cmd.Context(),
				argOr(args, 0, profile.Data.TestDir),
				argOr(args, 1, profile.Data.PredictedDir),
				decoder.New(m),
				profile.DecodeWorkers,
			)
			if err != nil {
				return err
			}
			writeFileStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "evaluate [gold] [predicted]",
		Short: "Score predicted files against gold files",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			agg, stats, err := pipeline.EvaluateDirs(
				cmd.Context(),
				argOr(args, 0, profile.Data.GoldDir),
				argOr(args, 1, profile.Data.PredictedDir),
				types.DefaultTagSet(),
			)
			if err != nil {
				return err
			}
			writeFileStats(cmd.OutOrStdout(), stats)

			report := agg.Report(profile.Name)
			if err := report.WriteSummary(cmd.OutOrStdout()); err != nil {
				return err
			}
			if reportPath == "" {
				return nil
			}
			if err := utils.EnsureDir(filepath.Dir(reportPath)); err != nil {
				return err
			}
			return utils.WriteFileAtomic(reportPath, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the report as JSON to this path")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Dump the stored model as text, one entry per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			m, closeStore, err := openModel(cmd.Context(), profile, true)
			if err != nil {
				return err
			}
			defer closeStore()

			path := argOr(args, 0, "-")
			if path == "-" {
				return ngram.WriteText(cmd.OutOrStdout(), m)
			}
			if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			return utils.WriteFileAtomic(path, func(w io.Writer) error {
				return ngram.WriteText(w, m)
			})
		},
	}
}

func newPrepareCmd() *cobra.Command {
	var cfg corpus.Config
	cmd := &cobra.Command{
		Use:   "prepare <src>",
		Short: "Turn a raw marked corpus into numbered one-word-per-line files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := corpus.Preprocess(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sources, %d words, %d files\n", stats.Sources, stats.Words, stats.Files)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.OutDir, "out", types.DefaultDataRoot, "output directory")
	cmd.Flags().IntVar(&cfg.WordsPerFile, "words-per-file", corpus.DefaultWordsPerFile, "words before rolling to the next file")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var ratio float64
	cmd := &cobra.Command{
		Use:   "split [dir]",
		Short: "Move numbered files into train/ and test/gold/",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := corpus.Split(argOr(args, 0, types.DefaultDataRoot), ratio)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d train files, %d test files\n", len(res.Train), len(res.Test))
			return nil
		},
	}
	cmd.Flags().Float64Var(&ratio, "ratio", 0.2, "share of files held out for testing")
	return cmd
}

func newStripCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "strip [gold] [test]",
		Short: "Write mark-free copies of the gold files",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			names, err := corpus.Strip(
				cmd.Context(),
				argOr(args, 0, profile.Data.GoldDir),
				argOr(args, 1, profile.Data.TestDir),
				types.DefaultTagSet(),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d files stripped\n", len(names))
			return nil
		},
	}
}

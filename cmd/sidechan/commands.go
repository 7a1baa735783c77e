package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sidechan"
	"sidechan/filters"
	"sidechan/scan"
)

type globalFlags struct {
	verbose bool
	config  string
	source  string
	serial  string
	bitmap  string
	records string
	trace   string
}

func newRootCmd(runner *sidechan.Runner) *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "sidechan",
		Short: "Calibrate a timing side channel and reconstruct a bitmap through it",
		Long: `Calibrate a timing side channel by alternating two reference states,
classify per-coordinate measurements with a dual threshold and rebuild the
target as a bitmap.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if g.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	pf.StringVarP(&g.config, "config", "c", "", "YAML config merged over defaults")
	pf.StringVar(&g.source, "source", "", "sampler: synthetic, probe or audio")
	pf.StringVar(&g.serial, "serial", "", "serial port of the bench target")
	pf.StringVar(&g.bitmap, "bitmap", "", "write the reconstructed bitmap (.png or .bmp)")
	pf.StringVar(&g.records, "records", "", "write run records as JSON")
	pf.StringVar(&g.trace, "trace", "", "write per-pixel measurements as CSV")

	cmd.AddCommand(runCmd(runner, g), quickCmd(runner, g), sweepCmd(runner, g))
	return cmd
}

// apply 把命令行参数覆盖到配置上，只覆盖显式给出的
func (g *globalFlags) apply(cfg *sidechan.Config) {
	if g.source != "" {
		cfg.Channel.Source = g.source
	}
	if g.serial != "" {
		cfg.Channel.Serial = g.serial
	}
	if g.trace != "" {
		cfg.Scan.Record = g.trace
	}
}

func runCmd(runner *sidechan.Runner, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one calibration and scan from a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sidechan.DefaultConfig()
			if g.config != "" {
				var err error
				if cfg, err = sidechan.LoadConfig(g.config); err != nil {
					return err
				}
			}
			g.apply(cfg)
			res, err := runner.Run(cmd.Context(), cfg)
			return g.finish(cfg, res, err)
		},
	}
}

func quickCmd(runner *sidechan.Runner, g *globalFlags) *cobra.Command {
	var (
		window        time.Duration
		reps          int
		low, high     float64
		tieBreak      string
		width, height int
		square        int
		calibrateOnly bool
		workers       int
		intensity     int
	)
	cmd := &cobra.Command{
		Use:     "quick",
		Short:   "Run with defaults plus a few overrides",
		Example: `sidechan quick --window 50ms --reps 20 --size 8 --checkerboard 2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, err := filters.ParseTieBreak(tieBreak)
			if err != nil {
				return err
			}
			opts := []sidechan.Option{
				sidechan.WithWindow(window, reps),
				sidechan.WithThresholds(low, high),
				sidechan.WithTieBreak(tb),
				sidechan.WithScan(width, height, square),
				sidechan.WithLoad(workers, intensity),
				g.apply,
			}
			if calibrateOnly {
				opts = append(opts, sidechan.CalibrateOnly())
			}
			cfg := sidechan.DefaultConfig()
			for _, o := range opts {
				o(cfg)
			}
			if cfg.Channel.Source == "synthetic" {
				sidechan.Fast()(cfg)
			}
			res, err := runner.Run(cmd.Context(), cfg)
			return g.finish(cfg, res, err)
		},
	}
	d := sidechan.DefaultConfig()
	f := cmd.Flags()
	f.DurationVar(&window, "window", d.Acquisition.Window.D(), "acquisition window per round")
	f.IntVar(&reps, "reps", d.Acquisition.Repetitions, "calibration rounds")
	f.Float64Var(&low, "low", d.Classifier.Low, "low threshold fraction")
	f.Float64Var(&high, "high", d.Classifier.High, "high threshold fraction")
	f.StringVar(&tieBreak, "tie-break", d.Classifier.TieBreak, "ambiguous zone policy: unknown or median")
	f.IntVar(&width, "width", d.Scan.Width, "scan width")
	f.IntVar(&height, "height", d.Scan.Height, "scan height")
	f.IntVar(&square, "checkerboard", d.Scan.Checkerboard, "checkerboard square size, 0 for no ground truth")
	f.BoolVar(&calibrateOnly, "calibrate-only", false, "skip the scan")
	f.IntVar(&workers, "load-workers", 0, "load generator workers, 0 disables")
	f.IntVar(&intensity, "load-intensity", d.Load.Intensity, "load generator operand digits")
	return cmd
}

func sweepCmd(runner *sidechan.Runner, g *globalFlags) *cobra.Command {
	var (
		top   int
		pause time.Duration
	)
	cmd := &cobra.Command{
		Use:     "sweep <series.yaml>",
		Short:   "Run a list of configurations and rank them by ratio",
		Example: `sidechan sweep configs.yaml --records sweep.json --top 5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := sidechan.LoadSeries(args[0])
			if err != nil {
				return err
			}
			for _, cfg := range cfgs {
				g.apply(cfg)
				// 扫参只关心校准质量
				cfg.Scan.Record = ""
			}
			runner.Pause = pause
			sweeping.Store(true)
			records := runner.RunSeries(cmd.Context(), cfgs)

			if g.records != "" {
				if err := sidechan.SaveRecords(g.records, records); err != nil {
					return err
				}
				log.WithField("file", g.records).Info("records saved")
			}
			fmt.Printf("\n%d/%d runs completed. Top %d by ratio:\n", len(sidechan.TopByRatio(records, 0)), len(cfgs), top)
			sidechan.PrintRanking(os.Stdout, sidechan.TopByRatio(records, top))
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of configurations to rank")
	cmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "pause between runs")
	return cmd
}

// finish 打印结果并导出位图和记录
func (g *globalFlags) finish(cfg *sidechan.Config, res *sidechan.Result, runErr error) error {
	if res != nil {
		fmt.Printf("\nA mean: %.3f  B mean: %.3f  ratio: %.3f (%s)\n",
			res.ClassAMean, res.ClassBMean, res.Ratio, res.QualityTier)
		if res.Scan != nil {
			fmt.Printf("scan: %d px, accuracy %.1f%% (correct %d, incorrect %d, unknown %d)\n",
				res.Scan.Processed, res.AccuracyPercent, res.Scan.Correct, res.Scan.Incorrect, res.Scan.Unknown)
			if g.bitmap != "" {
				if err := scan.SaveBitmap(g.bitmap, res.Scan.Bitmap); err != nil {
					return err
				}
				log.WithField("file", g.bitmap).Info("bitmap saved")
			}
		}
	}
	if g.records != "" {
		rec := sidechan.RunRecord{RunNumber: 1, Config: cfg, Result: res}
		if runErr != nil {
			rec.Result = nil
			rec.Error = runErr.Error()
		}
		if err := sidechan.SaveRecords(g.records, []sidechan.RunRecord{rec}); err != nil {
			return err
		}
	}
	if runErr != nil {
		log.WithError(runErr).Error("run failed")
	}
	return runErr
}

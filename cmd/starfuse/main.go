// Command starfuse fuses a stack of registered exposures into a single
// image with per-pixel confidence and distribution classification. Input is
// either a glob of PNG frames or a synthetic stack; output is a pair of
// PNGs (fused, confidence) plus optional HTML report, profile plots and a
// SQLite run record.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepsky-data/starfuse/internal/config"
	"github.com/deepsky-data/starfuse/internal/fusion"
	"github.com/deepsky-data/starfuse/internal/fusion/device"
	sqlitestore "github.com/deepsky-data/starfuse/internal/fusion/storage/sqlite"
	"github.com/deepsky-data/starfuse/internal/imageio"
	"github.com/deepsky-data/starfuse/internal/report"
	"github.com/deepsky-data/starfuse/internal/simstack"
	"github.com/deepsky-data/starfuse/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to tuning JSON (partial overrides allowed)")
	input := flag.String("input", "", "Glob of registered PNG frames; empty generates a synthetic stack")
	synthetic := flag.String("synthetic", "starfield", "Synthetic stack type: gaussian, poisson, bimodal, starfield")
	frames := flag.Int("frames", 50, "Synthetic frame count")
	width := flag.Int("width", 256, "Synthetic frame width")
	height := flag.Int("height", 256, "Synthetic frame height")
	seed := flag.Uint64("seed", 1, "Synthetic generator seed")

	strategy := flag.String("strategy", "", "Fusion strategy: mle, confidence_weighted, lucky, multiscale")
	sigma := flag.Float64("sigma", 0, "Outlier sigma for confidence-weighted fusion")
	threshold := flag.Float64("threshold", -1, "Confidence threshold for the run summary")
	cpu := flag.Bool("cpu", false, "Force the host backend even if a GPU is available")
	workers := flag.Int("workers", -1, "Host backend worker count (0 = one per CPU)")

	outPrefix := flag.String("out", "", "Output file prefix")
	reportPath := flag.String("report", "", "Write an HTML run report to this path")
	plotsDir := flag.String("plots", "", "Write PNG row-profile plots into this directory")
	store := flag.Bool("store", false, "Record the run summary in SQLite")
	dbPath := flag.String("db", "", "SQLite database path for run records")
	showVersion := flag.Bool("version", false, "Print build information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		tuning = loaded
	}

	cfg := tuning.Processing()
	if *strategy != "" {
		s, ok := fusion.ParseStrategy(*strategy)
		if !ok {
			log.Fatalf("unknown strategy %q", *strategy)
		}
		cfg.Strategy = s
	}
	if *sigma > 0 {
		cfg.OutlierSigma = *sigma
	}
	if *threshold >= 0 {
		cfg.ConfidenceThreshold = *threshold
	}
	if *cpu {
		cfg.UseDevice = false
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	stack, err := buildStack(*input, *synthetic, *frames, *width, *height, *seed)
	if err != nil {
		log.Fatalf("build stack: %v", err)
	}

	var dev fusion.Backend
	if cfg.UseDevice {
		ctx, err := device.Probe()
		if err != nil {
			log.Printf("no GPU available (%v); using host backend", err)
		} else {
			defer ctx.Close()
			backend, err := device.NewBackend(ctx)
			if err != nil {
				log.Printf("GPU backend init failed (%v); using host backend", err)
			} else {
				log.Printf("using GPU adapter %s", ctx.Capability().AdapterName)
				dev = backend
			}
		}
	}

	sched, err := fusion.NewScheduler(cfg, dev)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	sched.WithClassificationMap()

	started := time.Now()
	lastPct := -10
	result, err := sched.Run(stack, func(percent int, message string) {
		if percent >= lastPct+10 || percent == 100 {
			log.Printf("[%3d%%] %s", percent, message)
			lastPct = percent
		}
	})
	if err != nil {
		log.Fatalf("fusion run: %v", err)
	}
	wall := time.Since(started)
	backendName := sched.Backend().Name()

	stats := fusion.ComputeRunStatistics(result, cfg.ConfidenceThreshold, len(stack.Frames))
	fmt.Printf("fused %d frames (%dx%d) on %s backend in %s\n",
		stats.FrameCount, result.Width, result.Height, backendName, wall.Round(time.Millisecond))
	fmt.Printf("mean confidence %.3f (min %.3f, %.1f%% below %.2f)\n",
		stats.MeanConfidence, stats.MinConfidence,
		stats.LowConfidenceFraction*100, cfg.ConfidenceThreshold)
	fmt.Printf("reliable %.1f%%, artifact %.1f%%, fused range [%.1f, %.1f]\n",
		stats.ReliableFraction*100, stats.ArtifactFraction*100, stats.FusedMin, stats.FusedMax)

	prefix := tuning.GetOutputPrefix()
	if *outPrefix != "" {
		prefix = *outPrefix
	}
	fusedPath := prefix + "_fused.png"
	if err := imageio.SaveFused(fusedPath, result); err != nil {
		log.Fatalf("write fused image: %v", err)
	}
	confPath := prefix + "_confidence.png"
	if err := imageio.SaveConfidence(confPath, result); err != nil {
		log.Fatalf("write confidence image: %v", err)
	}
	log.Printf("wrote %s and %s", fusedPath, confPath)

	if *reportPath != "" {
		if err := writeReport(*reportPath, result, stats, backendName); err != nil {
			log.Fatalf("write report: %v", err)
		}
		log.Printf("wrote %s", *reportPath)
	}

	if *plotsDir != "" {
		if err := report.SaveProfilePlots(*plotsDir, result, nil); err != nil {
			log.Fatalf("write plots: %v", err)
		}
		log.Printf("wrote profile plots to %s", *plotsDir)
	}

	if *store || tuning.GetStoreRuns() {
		path := tuning.GetDBPath()
		if *dbPath != "" {
			path = *dbPath
		}
		if err := recordRun(path, result, stats, cfg, backendName, wall); err != nil {
			log.Fatalf("record run: %v", err)
		}
		log.Printf("recorded run in %s", path)
	}
}

// buildStack loads frames from disk or generates a synthetic stack.
func buildStack(input, synthetic string, frames, width, height int, seed uint64) (*fusion.ImageStack, error) {
	if input != "" {
		return imageio.LoadStack(input)
	}

	switch synthetic {
	case "gaussian":
		return simstack.Gaussian(frames, width, height, 1000, 50, seed), nil
	case "poisson":
		return simstack.Poisson(frames, width, height, 100, seed), nil
	case "bimodal":
		return simstack.Bimodal(frames, width, height, 100, 1000, 10, seed), nil
	case "starfield":
		return simstack.Starfield(frames, width, height, 100, 10, seed), nil
	}
	return nil, fmt.Errorf("unknown synthetic stack type %q", synthetic)
}

func writeReport(path string, result *fusion.FusionResult, stats *fusion.RunStatistics, backendName string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return report.Render(fh, result, stats, backendName)
}

// recordRun appends the run summary to the SQLite history.
func recordRun(path string, result *fusion.FusionResult, stats *fusion.RunStatistics, cfg fusion.ProcessingConfig, backendName string, wall time.Duration) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlitestore.NewRunStore(db)
	if err := store.Init(); err != nil {
		return err
	}

	run, err := sqlitestore.RecordFromStatistics(result, stats, cfg, backendName, wall)
	if err != nil {
		return err
	}
	if err := store.Insert(run); err != nil {
		return err
	}
	fmt.Printf("run recorded as %s\n", run.RunID)
	return nil
}

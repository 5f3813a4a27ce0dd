// Command crowd replays recorded detector output through the crowd-safety
// pipeline and prints one JSON snapshot per frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd/pipeline"
	"github.com/banshee-data/crowd.report/internal/crowd/replay"
	"github.com/banshee-data/crowd.report/internal/crowd/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to tuning JSON (defaults to built-in values)")
	replayFile  = flag.String("replay", "", "JSON-lines tensor recording to replay (required)")
	sourceList  = flag.String("sources", "foreground", "Comma-separated source IDs, each replays the recording with its own state")
	maxFrames   = flag.Uint64("frames", 0, "Stop each source after this many frames (0 = until the recording ends)")
	dbPath      = flag.String("db", "", "Optional SQLite database that stores every snapshot")
	interval    = flag.Duration("interval", 0, "Override the tuning tick interval")
	live        = flag.Bool("live", false, "Treat sources as live feeds and keep empty frames in history")
	loop        = flag.Bool("loop", false, "Loop the recording instead of stopping at its end")
	debugLog    = flag.Bool("debug", false, "Write pipeline diag and trace logs to stderr")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// options is the resolved command line.
type options struct {
	Tuning    *config.TuningConfig
	FS        fsutil.FileSystem
	Replay    string
	Sources   []string
	MaxFrames uint64
	DBPath    string
	Interval  time.Duration
	Live      bool
	Loop      bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("crowd"))
		return
	}
	if *replayFile == "" {
		log.Fatal("-replay is required")
	}

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	sources, err := parseSources(*sourceList)
	if err != nil {
		log.Fatalf("invalid -sources: %v", err)
	}

	if *debugLog {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	} else {
		pipeline.SetLogWriters(os.Stderr, nil, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		Tuning:    tuning,
		FS:        fsutil.OSFileSystem{},
		Replay:    *replayFile,
		Sources:   sources,
		MaxFrames: *maxFrames,
		DBPath:    *dbPath,
		Interval:  *interval,
		Live:      *live,
		Loop:      *loop,
	}
	if err := run(ctx, opts, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("crowd: %v", err)
	}
	log.Print("crowd: done")
}

// parseSources splits a comma-separated list of source IDs. Empty entries
// and duplicates are rejected because each ID owns its own tracker state.
func parseSources(list string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(list, ",") {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("empty source id in %q", list)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate source id %q", id)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// run replays the recording through one pipeline per source until every
// source is exhausted or ctx ends.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	if len(opts.Sources) == 0 {
		return errors.New("no sources")
	}
	rec, err := replay.Load(opts.FS, opts.Replay)
	if err != nil {
		return err
	}

	sinks := []pipeline.SnapshotSink{pipeline.NewJSONSink(stdout)}
	if opts.DBPath != "" {
		store, err := sqlite.Open(opts.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	tick := opts.Tuning.GetTickInterval()
	if opts.Interval > 0 {
		tick = opts.Interval
	}

	runner := pipeline.NewRunner(nil)
	for _, id := range opts.Sources {
		player := replay.NewPlayer(rec, opts.Loop)
		p := pipeline.NewFramePipeline(pipeline.Config{
			SourceID: id,
			Tuning:   opts.Tuning,
			Engine:   player,
			Sinks:    sinks,
			Live:     opts.Live,
		})
		if err := runner.Add(pipeline.Source{
			Pipeline:  p,
			Frames:    player,
			Interval:  tick,
			MaxFrames: opts.MaxFrames,
		}); err != nil {
			return err
		}
	}

	log.Printf("crowd: session %s replaying %d frame(s) from %s on %d source(s) every %v",
		runner.SessionID(), len(rec.Records), opts.Replay, len(opts.Sources), tick)
	return runner.Run(ctx)
}

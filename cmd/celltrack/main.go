// Command celltrack tracks objects of a directory of labeled frames and stores tracks into a SQLite database.
//
// Usage:
//
//	celltrack -frames DIR -grid FILE [-config FILE] [-db FILE] [-labels DIR] [-workers N]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/LdDl/celltrack-go/config"
	"github.com/LdDl/celltrack-go/frameio"
	"github.com/LdDl/celltrack-go/trackdb"
	"github.com/soniakeys/exit"
)

func main() {
	defer exit.Handler()
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage:
   celltrack -frames DIR -grid FILE [-config FILE] [-db FILE] [-labels DIR] [-workers N]

`)
		flag.PrintDefaults()
	}
	configPath := flag.String("config", "", "tracking configuration (.json), defaults when empty")
	framesDir := flag.String("frames", "", "directory of labeled frames named *_YYYYMMDD_HHMM.json[.gz]")
	gridPath := flag.String("grid", "", "grid file with pixel coordinates")
	dbPath := flag.String("db", "celltrack.db", "SQLite track database")
	labelsDir := flag.String("labels", "", "write track-number masks into this directory")
	workers := flag.Int("workers", -1, "worker pool size, overrides configuration when not negative")
	flag.Parse()
	if *framesDir == "" || *gridPath == "" || flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadTracking(*configPath)
	if err != nil {
		exit.Log(err)
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st := time.Now()
	res, src, err := track(ctx, cfg, *framesDir, *gridPath)
	if err != nil {
		exit.Log(err)
	}
	log.Printf("[celltrack] tracked %d frames in %s: %d of %d tracks kept", res.Diagnostics.Frames, time.Since(st), res.Diagnostics.TracksKept, res.Diagnostics.TracksBuilt)

	db, err := trackdb.Open(*dbPath)
	if err != nil {
		exit.Log(err)
	}
	defer db.Close()
	runID, err := db.SaveResult(ctx, res)
	if err != nil {
		exit.Log(err)
	}
	fmt.Printf("run %s: %d tracks stored in %s\n", runID, len(res.Stats), *dbPath)

	if *labelsDir != "" {
		n, err := frameio.WriteTrackMasks(ctx, res, src, *labelsDir)
		if err != nil {
			exit.Log(err)
		}
		fmt.Printf("%d track masks written to %s\n", n, *labelsDir)
	}
}

func track(ctx context.Context, cfg celltrack.Config, framesDir, gridPath string) (*celltrack.Result, *frameio.Dir, error) {
	grid, err := frameio.ReadGrid(gridPath)
	if err != nil {
		return nil, nil, err
	}
	src, err := frameio.OpenDir(framesDir)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := celltrack.NewTracker(cfg, grid)
	if err != nil {
		return nil, nil, err
	}
	res, err := tracker.Run(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return res, src, nil
}

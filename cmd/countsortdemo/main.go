// Command countsortdemo sorts a generated key set with the counting sort
// engine, verifies the result and reports timings.
//
// It runs on the GPU when one is available and falls back to the host
// executor otherwise (or when -host is given).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/countsort"
	"github.com/gogpu/countsort/internal/keys"
	"github.com/gogpu/countsort/internal/reference"
	"github.com/gogpu/gputypes"
)

var errWrongOrder = errors.New("sorting ids do not order the keys")

type config struct {
	n         int
	buckets   uint32
	width     uint32
	levels    int
	dist      keys.Distribution
	seed      uint64
	runs      int
	host      bool
	histogram string
}

func main() {
	var (
		n         = flag.Int("n", 1<<20, "number of keys")
		buckets   = flag.Uint("buckets", 8192, "number of buckets")
		width     = flag.Uint("workgroup", 128, "work-group width")
		levels    = flag.Int("levels", countsort.DefaultMaxScanLevels, "maximum scan levels")
		dist      = flag.String("dist", "uniform", "key distribution: uniform, normal, exponential, constant, sequential")
		seed      = flag.Uint64("seed", 1, "random seed")
		runs      = flag.Int("runs", 10, "timed invocations")
		host      = flag.Bool("host", false, "run on the host executor instead of the GPU")
		histogram = flag.String("histogram", "", "write a bucket histogram PNG to this file")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		countsort.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	d, err := keys.ParseDistribution(*dist)
	if err != nil {
		log.Fatal(err)
	}
	cfg := config{
		n:         *n,
		buckets:   uint32(*buckets), //nolint:gosec // flag value
		width:     uint32(*width),   //nolint:gosec // flag value
		levels:    *levels,
		dist:      d,
		seed:      *seed,
		runs:      max(*runs, 1),
		host:      *host,
		histogram: *histogram,
	}
	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("countsortdemo: %v", err)
	}
}

// result is what one backend produced.
type result struct {
	backend string
	ids     []uint32
	counts  []uint32
	times   []float64 // milliseconds
}

func run(ctx context.Context, cfg config) error {
	values, err := keys.Generate(keys.Config{N: cfg.n, Buckets: cfg.buckets, Distribution: cfg.dist, Seed: cfg.seed})
	if err != nil {
		return err
	}
	plan, err := countsort.NewPlan(uint32(len(values)), cfg.buckets, cfg.width, //nolint:gosec // bounded by -n
		countsort.WithMaxScanLevels(cfg.levels))
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Printf("keys: %d (%s), buckets: %d, width: %d\n", len(values), cfg.dist, cfg.buckets, cfg.width)
	p.Printf("plan: %s\n", plan)

	var res *result
	if !cfg.host {
		res, err = runGPU(ctx, cfg, values)
		if err != nil {
			log.Printf("GPU unavailable, using host executor: %v", err)
		}
	}
	if res == nil {
		res, err = runHost(ctx, cfg, plan, values)
		if err != nil {
			return err
		}
	}

	if !reference.IsPermutation(res.ids) || !reference.IsSortedByID(values, res.ids) {
		return errWrongOrder
	}
	mean, std := stat.MeanStdDev(res.times, nil)
	p.Printf("%s: %d runs, %.3f ms ± %.3f ms, %.1f Mkeys/s\n",
		res.backend, len(res.times), mean, std, float64(len(values))/mean/1e3)

	if cfg.histogram != "" {
		hist := reference.Histogram(values, int(cfg.buckets))
		if err := writeHistogram(cfg.histogram, hist, res.counts); err != nil {
			return err
		}
		p.Printf("histogram written to %s\n", cfg.histogram)
	}
	return nil
}

func runHost(ctx context.Context, cfg config, plan *countsort.Plan, values []uint32) (*result, error) {
	bufs := countsort.NewHostBuffers(values, cfg.buckets)
	res := &result{backend: "host"}
	for range cfg.runs {
		start := time.Now()
		if err := plan.ExecuteOnHost(ctx, bufs); err != nil {
			return nil, err
		}
		res.times = append(res.times, float64(time.Since(start).Microseconds())/1e3)
	}
	res.ids, res.counts = bufs.SortingIDs, bufs.Counts
	return res, nil
}

func runGPU(ctx context.Context, cfg config, values []uint32) (*result, error) {
	dev, err := countsort.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	valueBuf, err := dev.CreateBufferInit("values", gputypes.BufferUsageStorage, values)
	if err != nil {
		return nil, err
	}
	defer valueBuf.Destroy()
	countBuf, err := dev.CreateBufferInit("counts",
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc, make([]uint32, cfg.buckets))
	if err != nil {
		return nil, err
	}
	defer countBuf.Destroy()

	sorter, err := countsort.New(dev, valueBuf, countBuf, cfg.width, countsort.WithMaxScanLevels(cfg.levels))
	if err != nil {
		return nil, err
	}
	defer sorter.Destroy()

	res := &result{backend: "gpu " + dev.AdapterName()}
	for range cfg.runs {
		start := time.Now()
		if err := sorter.Run(ctx); err != nil {
			return nil, err
		}
		res.times = append(res.times, float64(time.Since(start).Microseconds())/1e3)
	}

	if res.ids, err = readBuffer(ctx, dev, sorter.SortingIDBuffer()); err != nil {
		return nil, err
	}
	if res.counts, err = readBuffer(ctx, dev, countBuf); err != nil {
		return nil, err
	}
	return res, nil
}

func readBuffer(ctx context.Context, dev *countsort.Device, src *countsort.Buffer) ([]uint32, error) {
	staging, err := countsort.NewStagingBuffer(dev, src.Len(), src.Label()+"_staging")
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	enc, err := dev.NewEncoder("readback")
	if err != nil {
		return nil, err
	}
	if err := staging.EncodeRead(enc, src); err != nil {
		enc.DiscardEncoding()
		return nil, err
	}
	sub, err := dev.Submit(enc)
	if err != nil {
		return nil, err
	}
	rb, err := staging.MapAsync(ctx, sub)
	if err != nil {
		return nil, err
	}
	return rb.Wait(ctx)
}

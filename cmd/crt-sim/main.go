// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command crt-sim simulates the response of the CRT front-end electronics
// to the energy deposits held in a LCIO file.
//
// Usage: crt-sim [OPTIONS] deposits.lcio
//
// Example:
//
//	$> crt-sim -geo ./crt.toml -cfg ./detsim.toml -o out.lcio ./deposits.lcio
//	$> crt-sim -db crtdb -params nominal -o out.raw -runlog runs.sqlite ./deposits.lcio
package main // import "github.com/go-lpc/crt/cmd/crt-sim"

import (
	"compress/flate"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/crt/conddb"
	"github.com/go-lpc/crt/crtsim"
	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
	"github.com/go-lpc/crt/internal/runlog"
	"github.com/go-lpc/crt/internal/xcnv"
	"github.com/sbinet/pmon"
	"go-hep.org/x/hep/lcio"
)

const usage = `crt-sim simulates the response of the CRT front-end electronics.

Usage: crt-sim [OPTIONS] deposits.lcio

Example:

 $> crt-sim -geo ./crt.toml -cfg ./detsim.toml -o out.lcio ./deposits.lcio
 $> crt-sim -db crtdb -params nominal -o out.raw -runlog runs.sqlite ./deposits.lcio

Output files ending with ".lcio" hold one CRTData collection per input event.
Other output files hold the raw FEB stream.

options:
`

func main() {
	xmain(os.Args[1:])
}

func xmain(args []string) {
	log.SetPrefix("crt-sim: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("crt-sim", flag.ExitOnError)

		cfg    = fset.String("cfg", "", "path to TOML simulation configuration")
		geo    = fset.String("geo", "", "path to TOML geometry description")
		db     = fset.String("db", "", "name of the conditions DB")
		params = fset.String("params", "", "name of the conditions DB parameter set")
		oname  = fset.String("o", "out.lcio", "path to output file")
		lvl    = fset.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		seed   = fset.Uint64("seed", 0, "random seed (overrides configuration)")
		vrb    = fset.Bool("v", false, "enable verbose mode (overrides configuration)")
		flush  = fset.Bool("flush", false, "emit events still open at end of input (overrides configuration)")
		nwrk   = fset.Int("j", 0, "number of trigger workers (overrides configuration, 0: unlimited)")
		rlog   = fset.String("runlog", "", "path to SQLite run log")
		doMon  = fset.Bool("pmon", false, "enable pmon monitoring")
		doFreq = fset.Duration("freq", 1*time.Second, "pmon frequency")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() != 1 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	opts := options{
		cfg:    *cfg,
		geo:    *geo,
		db:     *db,
		params: *params,
		oname:  *oname,
		lvl:    *lvl,
		runlog: *rlog,
	}
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			opts.seed = seed
		case "v":
			opts.verbose = vrb
		case "flush":
			opts.flush = flush
		case "j":
			opts.workers = nwrk
		}
	})

	if *doMon {
		err = monitor(opts.oname+"-pmon.log", *doFreq)
		if err != nil {
			log.Fatalf("could not start self-monitoring: %+v", err)
		}
	}

	err = process(log.Default(), fset.Arg(0), opts)
	if err != nil {
		log.Fatalf("could not simulate %q: %+v", fset.Arg(0), err)
	}
}

type options struct {
	cfg    string // TOML configuration
	geo    string // TOML geometry
	db     string // conditions DB
	params string // conditions DB parameter set
	oname  string
	lvl    int
	runlog string

	// command-line overrides of the configuration.
	seed    *uint64
	verbose *bool
	flush   *bool
	workers *int
}

func (opts options) config(ctx context.Context, db *conddb.DB) (crtsim.Config, error) {
	var (
		cfg = crtsim.DefaultConfig()
		err error
	)
	if opts.cfg != "" {
		cfg, err = crtsim.LoadConfig(opts.cfg)
		if err != nil {
			return cfg, fmt.Errorf("could not load configuration: %w", err)
		}
	}

	if opts.params != "" {
		if db == nil {
			return cfg, fmt.Errorf("parameter set %q requires a conditions DB", opts.params)
		}
		ps, err := db.DetSimParams(ctx, opts.params)
		if err != nil {
			return cfg, fmt.Errorf("could not retrieve parameter set %q: %w", opts.params, err)
		}
		err = cfg.Apply(ps)
		if err != nil {
			return cfg, fmt.Errorf("could not apply parameter set %q: %w", opts.params, err)
		}
	}

	if opts.seed != nil {
		cfg.Seed = *opts.seed
	}
	if opts.verbose != nil {
		cfg.Verbose = *opts.verbose
	}
	if opts.flush != nil {
		cfg.FlushOnClose = *opts.flush
	}
	if opts.workers != nil {
		cfg.Workers = *opts.workers
	}

	return cfg, cfg.Validate()
}

func (opts options) geometry(ctx context.Context, db *conddb.DB) (*geom.Detector, error) {
	switch {
	case opts.geo != "":
		return geom.ReadFile(opts.geo)
	case db != nil:
		return db.Geometry(ctx, xcnv.Detector)
	}
	return nil, fmt.Errorf("missing geometry (-geo or -db)")
}

func process(msg *log.Logger, fname string, opts options) error {
	ctx := context.Background()

	var db *conddb.DB
	if opts.db != "" {
		var err error
		db, err = conddb.Open(opts.db)
		if err != nil {
			return fmt.Errorf("could not open conditions DB: %w", err)
		}
		defer db.Close()
	}

	cfg, err := opts.config(ctx, db)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	det, err := opts.geometry(ctx, db)
	if err != nil {
		return fmt.Errorf("could not load geometry: %w", err)
	}

	sim, err := crtsim.New(det, cfg, crtsim.WithLogger(msg))
	if err != nil {
		return fmt.Errorf("could not create simulator: %w", err)
	}

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open input LCIO file: %w", err)
	}
	defer r.Close()

	out, err := newSink(opts.oname, opts.lvl)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer out.close()

	var (
		run = runlog.NewRun(fname, opts.oname, cfg.Seed)
		tot = run.Counters
	)

	for r.Next() {
		evt := r.Event()
		if run.Events == 0 {
			rhdr := r.RunHeader()
			err = out.header(rhdr, cfg.Seed)
			if err != nil {
				return fmt.Errorf("could not write run header: %w", err)
			}
		}
		if run.Events%100 == 0 {
			msg.Printf("processing evt %d...", run.Events)
		}
		run.Events++

		deps, err := xcnv.DepositsFrom(&evt, xcnv.Deposits)
		if err != nil {
			return fmt.Errorf("could not read deposits: %w", err)
		}
		run.Deposits += int64(len(deps))

		evts, cnt := sim.Process(deps)
		tot.Add(cnt)

		err = out.write(&evt, evts)
		if err != nil {
			return fmt.Errorf("could not write FEB events of event %d: %w", evt.EventNumber, err)
		}
	}

	err = r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not read input LCIO file: %w", err)
	}

	err = out.close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}

	run.Stop = time.Now().UTC()
	run.Counters = tot
	msg.Printf("processed %d events (%d deposits) -> %d FEB events",
		run.Events, run.Deposits, tot.Events(),
	)

	if cfg.Verbose {
		o := new(strings.Builder)
		tot.Summary(o)
		sim.Diagnostics().Summary(o)
		msg.Printf("\n%s", o.String())
	}

	if opts.runlog != "" {
		store, err := runlog.Open(opts.runlog)
		if err != nil {
			return fmt.Errorf("could not open run log: %w", err)
		}
		defer store.Close()

		err = store.Insert(ctx, run)
		if err != nil {
			return fmt.Errorf("could not log run: %w", err)
		}
		msg.Printf("run %s logged into %q", run.ID, opts.runlog)

		err = store.Close()
		if err != nil {
			return fmt.Errorf("could not close run log: %w", err)
		}
	}

	return nil
}

// sink writes FEB events either to LCIO or to a raw FEB stream.
type sink struct {
	lcio *lcio.Writer

	raw *os.File
	enc *feb.Encoder
}

func newSink(fname string, lvl int) (*sink, error) {
	if strings.HasSuffix(fname, ".lcio") || strings.HasSuffix(fname, ".slcio") {
		w, err := lcio.Create(fname)
		if err != nil {
			return nil, err
		}
		w.SetCompressionLevel(lvl)
		return &sink{lcio: w}, nil
	}

	f, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	return &sink{raw: f, enc: feb.NewEncoder(f)}, nil
}

func (s *sink) header(rhdr lcio.RunHeader, seed uint64) error {
	if s.lcio == nil {
		return nil
	}
	if rhdr.Detector == "" {
		rhdr.Detector = xcnv.Detector
	}
	rhdr.Descr = strings.TrimSpace(fmt.Sprintf("%s crt-sim seed=%d", rhdr.Descr, seed))
	return s.lcio.WriteRunHeader(&rhdr)
}

func (s *sink) write(evt *lcio.Event, evts []feb.Event) error {
	if s.lcio != nil {
		evt.Add(xcnv.FEBData, xcnv.GenericObject(evts))
		return s.lcio.WriteEvent(evt)
	}

	for i := range evts {
		err := s.enc.Encode(&evts[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *sink) close() error {
	switch {
	case s.lcio != nil:
		w := s.lcio
		s.lcio = nil
		return w.Close()
	case s.raw != nil:
		f := s.raw
		s.raw = nil
		s.enc = nil
		err := f.Sync()
		if err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

// monitor starts monitoring the resources used by the current process.
// The monitor stops with the process.
func monitor(fname string, freq time.Duration) error {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return fmt.Errorf("could not monitor pid=%d: %w", os.Getpid(), err)
	}

	err = os.MkdirAll(filepath.Dir(fname), 0755)
	if err != nil {
		return fmt.Errorf("could not create pmon log directory: %w", err)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return nil
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package febsrv implements a TDAQ process that replays energy deposits
// through the CRT front-end simulation and publishes the resulting raw FEB
// events.
package febsrv // import "github.com/go-lpc/crt/febsrv"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-daq/tdaq"
	"github.com/go-lpc/crt/crtsim"
	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
	"github.com/go-lpc/crt/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

// Settings configures a FEB server.
type Settings struct {
	Config   string  `toml:"config"`    // path to the TOML simulation configuration
	Geometry string  `toml:"geometry"`  // path to the TOML geometry description
	Deposits string  `toml:"deposits"`  // path to the LCIO file of energy deposits
	Period   float64 `toml:"period-ms"` // pause between replayed input events

	Mail Mail `toml:"mail"`
}

// LoadSettings reads the FEB server settings from the named TOML file.
func LoadSettings(fname string) (Settings, error) {
	var set Settings
	meta, err := toml.DecodeFile(fname, &set)
	if err != nil {
		return set, fmt.Errorf("febsrv: could not decode settings %q: %w", fname, err)
	}
	if keys := meta.Undecoded(); len(keys) != 0 {
		return set, fmt.Errorf("febsrv: unknown settings keys %q", keys)
	}
	return set, nil
}

// Server is a TDAQ process publishing simulated FEB events.
type Server struct {
	name string
	set  Settings

	cfg  crtsim.Config
	geo  *geom.Detector
	deps [][]crtsim.Deposit // input events

	sim  *crtsim.Simulator
	data chan []byte

	mu   sync.Mutex
	cnt  crtsim.Counters
	nevt int // number of replayed input events
	nfeb int // number of published FEB events

	send func(Mail, string, string) error
}

// New creates a new FEB server.
func New(name string, set Settings) *Server {
	return &Server{
		name: name,
		set:  set,
		send: sendMail,
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if len(req.Body) != 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		if fname := dec.ReadStr(); fname != "" {
			srv.set.Deposits = fname
		}
	}

	cfg := crtsim.DefaultConfig()
	if srv.set.Config != "" {
		var err error
		cfg, err = crtsim.LoadConfig(srv.set.Config)
		if err != nil {
			ctx.Msg.Errorf("could not load configuration: %+v", err)
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}

	geo, err := geom.ReadFile(srv.set.Geometry)
	if err != nil {
		ctx.Msg.Errorf("could not load geometry: %+v", err)
		return fmt.Errorf("could not load geometry: %w", err)
	}

	deps, err := readDeposits(srv.set.Deposits)
	if err != nil {
		ctx.Msg.Errorf("could not load deposits: %+v", err)
		return fmt.Errorf("could not load deposits: %w", err)
	}
	ctx.Msg.Infof("loaded %d input events from %q", len(deps), srv.set.Deposits)

	srv.cfg = cfg
	srv.geo = geo
	srv.deps = deps
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return srv.init()
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return srv.init()
}

func (srv *Server) init() error {
	if srv.geo == nil {
		return fmt.Errorf("febsrv: server not configured")
	}

	sim, err := crtsim.New(srv.geo, srv.cfg)
	if err != nil {
		return fmt.Errorf("could not create simulator: %w", err)
	}

	srv.sim = sim
	srv.data = make(chan []byte, 1024)

	srv.mu.Lock()
	srv.cnt = crtsim.Counters{Regions: make(map[uint32]uint32)}
	srv.nevt = 0
	srv.nfeb = 0
	srv.mu.Unlock()
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.sim == nil {
		return fmt.Errorf("febsrv: server not initialized")
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	nevt, nfeb := srv.nevt, srv.nfeb
	srv.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", nfeb)

	subject, body := srv.summary()
	ctx.Msg.Infof("replayed %d events, published %d FEB events\n%s", nevt, nfeb, body)

	if srv.set.Mail.Server == "" {
		return nil
	}

	err := srv.send(srv.set.Mail, subject, body)
	if err != nil {
		// a mail failure must not prevent the run from stopping.
		ctx.Msg.Errorf("could not send run summary: %+v", err)
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// Output publishes the next raw FEB event.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Loop replays the input events through the simulation until the run
// is stopped.
func (srv *Server) Loop(ctx tdaq.Context) error {
	if len(srv.deps) == 0 {
		<-ctx.Ctx.Done()
		return nil
	}

	period := time.Duration(srv.set.Period * float64(time.Millisecond))
	for i := 0; ; i++ {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
		}

		evts, cnt := srv.sim.Process(srv.deps[i%len(srv.deps)])
		srv.mu.Lock()
		srv.cnt.Add(cnt)
		srv.nevt++
		srv.mu.Unlock()

		for j := range evts {
			buf := new(bytes.Buffer)
			err := feb.NewEncoder(buf).Encode(&evts[j])
			if err != nil {
				ctx.Msg.Errorf("could not encode FEB event: %+v", err)
				return fmt.Errorf("could not encode FEB event: %w", err)
			}
			select {
			case <-ctx.Ctx.Done():
				return nil
			case srv.data <- buf.Bytes():
				srv.mu.Lock()
				srv.nfeb++
				srv.mu.Unlock()
			}
		}

		if period > 0 {
			select {
			case <-ctx.Ctx.Done():
				return nil
			case <-time.After(period):
			}
		}
	}
}

// Counters returns the simulation counters accumulated since the last
// initialization.
func (srv *Server) Counters() crtsim.Counters {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	o := crtsim.Counters{Regions: make(map[uint32]uint32)}
	o.Add(srv.cnt)
	return o
}

func (srv *Server) summary() (subject, body string) {
	o := new(strings.Builder)
	srv.mu.Lock()
	srv.cnt.Summary(o)
	srv.mu.Unlock()
	if srv.sim != nil {
		srv.sim.Diagnostics().Summary(o)
	}

	subject = fmt.Sprintf("[%s] CRT run summary", srv.name)
	return subject, o.String()
}

func readDeposits(fname string) ([][]crtsim.Deposit, error) {
	r, err := lcio.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	var deps [][]crtsim.Deposit
	for r.Next() {
		evt := r.Event()
		v, err := xcnv.DepositsFrom(&evt, xcnv.Deposits)
		if err != nil {
			return nil, err
		}
		deps = append(deps, v)
	}

	err = r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not read LCIO file: %w", err)
	}
	return deps, nil
}

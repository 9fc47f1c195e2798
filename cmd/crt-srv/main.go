// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command crt-srv starts a TDAQ server publishing simulated CRT FEB events.
//
// Usage: crt-srv [TDAQ-OPTIONS] NAME settings.toml
//
// Example of settings:
//
//	config    = "detsim.toml"
//	geometry  = "crt.toml"
//	deposits  = "deposits.lcio"
//	period-ms = 10.0
//
//	[mail]
//	server = "smtp.example.org"
//	port   = 587
//	user   = "crt@example.org"
//	to     = ["shifter@example.org"]
package main // import "github.com/go-lpc/crt/cmd/crt-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/crt/febsrv"
)

func main() {
	cmd := flags.New()
	if len(cmd.Args) != 2 {
		log.Fatalf("usage: crt-srv [TDAQ-OPTIONS] NAME settings.toml")
	}

	set, err := febsrv.LoadSettings(cmd.Args[1])
	if err != nil {
		log.Fatalf("could not load settings: %+v", err)
	}

	dev := febsrv.New(cmd.Args[0], set)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/feb", dev.Output)

	srv.RunHandle(dev.Loop)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

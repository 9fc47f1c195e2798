// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crt holds code to simulate the front-end electronics of the
// Cosmic Ray Tagger (CRT) and to handle its FEB data.
//
// The simulation core lives in package crtsim. It turns truth-level energy
// deposits in scintillator strips into the readout records (FEB events)
// the CRT front-end boards would have produced.
package crt // import "github.com/go-lpc/crt"

import (
	"fmt"
	"runtime/debug"
)

const modulePath = "github.com/go-lpc/crt"

// Version returns the version of crt and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	if b.Main.Path == modulePath {
		return b.Main.Version, b.Main.Sum
	}

	for _, m := range b.Deps {
		if m.Path != modulePath {
			continue
		}
		if m.Replace == nil {
			return m.Version, m.Sum
		}
		switch r := m.Replace; {
		case r.Version != "" && r.Path != "":
			return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
		case r.Version != "":
			return r.Version, r.Sum
		case r.Path != "":
			return r.Path, r.Sum
		default:
			return m.Version + "*", ""
		}
	}
	return "", ""
}

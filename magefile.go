// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified.
var Default = Build

var cmds = []string{
	"crt-sim",
	"crt-srv",
	"crt-sql",
	"feb-dump",
	"feb-split",
	"feb2lcio",
	"lcio-dump",
	"lcio2feb",
}

// Build builds all the commands into ./bin.
func Build() error {
	mg.Deps(Vet)
	for _, name := range cmds {
		fmt.Printf("building %s...\n", name)
		err := sh.RunV("go", "build", "-o", filepath.Join("bin", name), "./cmd/"+name)
		if err != nil {
			return fmt.Errorf("could not build %q: %w", name, err)
		}
	}
	return nil
}

// Vet runs go vet over all the packages.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the tests of all the packages.
func Test() error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	if os.Getenv("CRT_RACE") != "" {
		args = append(args, "-race")
	}
	args = append(args, "./...")
	return sh.RunV("go", args...)
}

// Clean removes the built commands.
func Clean() error {
	return sh.Rm("bin")
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-lpc/crt/geom"
)

// Config holds the parameters of the CRT front-end simulation.
//
// Times are in nanoseconds unless noted otherwise.
type Config struct {
	Verbose bool `toml:"Verbose"`

	GlobalT0Offset float64 `toml:"GlobalT0Offset"`

	// time-walk model of the fixed-threshold discriminator.
	TDelayNorm         float64 `toml:"TDelayNorm"`
	TDelayShift        float64 `toml:"TDelayShift"`
	TDelaySigma        float64 `toml:"TDelaySigma"`
	TDelayOffset       float64 `toml:"TDelayOffset"`
	TDelayRMSGausNorm  float64 `toml:"TDelayRMSGausNorm"`
	TDelayRMSGausShift float64 `toml:"TDelayRMSGausShift"`
	TDelayRMSGausSigma float64 `toml:"TDelayRMSGausSigma"`
	TDelayRMSExpNorm   float64 `toml:"TDelayRMSExpNorm"`
	TDelayRMSExpShift  float64 `toml:"TDelayRMSExpShift"`
	TDelayRMSExpScale  float64 `toml:"TDelayRMSExpScale"`

	PropDelay        float64 `toml:"PropDelay"`      // ns/m
	PropDelayError   float64 `toml:"PropDelayError"` // ns/m
	TResInterpolator float64 `toml:"TResInterpolator"`

	UseEdep bool    `toml:"UseEdep"`
	Q0      float64 `toml:"Q0"` // energy deposited by a MIP

	QPed   float64 `toml:"QPed"`
	QSlope float64 `toml:"QSlope"`
	QRMS   float64 `toml:"QRMS"`

	QThresholdC float64 `toml:"QThresholdC"`
	QThresholdM float64 `toml:"QThresholdM"`
	QThresholdD float64 `toml:"QThresholdD"`

	StripCoincidenceWindow float64 `toml:"StripCoincidenceWindow"` // clock ticks

	ApplyCoincidenceC bool `toml:"ApplyCoincidenceC"`
	ApplyCoincidenceM bool `toml:"ApplyCoincidenceM"`
	ApplyCoincidenceD bool `toml:"ApplyCoincidenceD"`

	LayerCoincidenceWindowC float64 `toml:"LayerCoincidenceWindowC"`
	LayerCoincidenceWindowM float64 `toml:"LayerCoincidenceWindowM"`
	LayerCoincidenceWindowD float64 `toml:"LayerCoincidenceWindowD"`

	DeadTime float64 `toml:"DeadTime"` // µs
	BiasTime float64 `toml:"BiasTime"` // µs

	Seed uint64 `toml:"Seed"`

	ClockFrequency float64 `toml:"ClockFrequency"` // MHz
	FlushOnClose   bool    `toml:"FlushOnClose"`
	Workers        int     `toml:"Workers"`
}

// DefaultConfig returns the standard CRT front-end configuration.
func DefaultConfig() Config {
	return Config{
		GlobalT0Offset: 1.6e6,

		TDelayNorm:         4125.74,
		TDelayShift:        -300.31,
		TDelaySigma:        90.392,
		TDelayOffset:       -1.525,
		TDelayRMSGausNorm:  2.09138,
		TDelayRMSGausShift: 7.23993,
		TDelayRMSGausSigma: 170.027,
		TDelayRMSExpNorm:   1.6544,
		TDelayRMSExpShift:  75.6183,
		TDelayRMSExpScale:  79.3543,

		PropDelay:        6.2,
		PropDelayError:   0.7,
		TResInterpolator: 1.268,

		UseEdep: true,
		Q0:      1.75e-3,

		QPed:   63.6,
		QSlope: 131.9,
		QRMS:   15,

		QThresholdC: 530,
		QThresholdM: 530,
		QThresholdD: 530,

		StripCoincidenceWindow: 5,

		ApplyCoincidenceC: true,
		ApplyCoincidenceM: true,
		ApplyCoincidenceD: true,

		LayerCoincidenceWindowC: 150,
		LayerCoincidenceWindowM: 150,
		LayerCoincidenceWindowD: 150,

		DeadTime: 22,
		BiasTime: 0.05,

		Seed: 1234,

		ClockFrequency: 16,
		Workers:        1,
	}
}

// LoadConfig reads a TOML configuration file.
// Keys missing from the file keep their default value.
func LoadConfig(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("crtsim: could not open config file: %w", err)
	}
	defer f.Close()

	return DecodeConfig(f)
}

// DecodeConfig reads a TOML configuration from r.
// Keys missing from r keep their default value, unknown keys are rejected.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("crtsim: could not decode config: %w", err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return cfg, fmt.Errorf("crtsim: unknown config keys %q", names)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MaxClockFrequency is the highest clock frequency (MHz) for which one
// second of ticks fits in 32 bits.
const MaxClockFrequency = 4294

// Validate checks the configuration is usable.
func (cfg Config) Validate() error {
	switch {
	case cfg.ClockFrequency <= 0 || cfg.ClockFrequency > MaxClockFrequency:
		return fmt.Errorf("crtsim: invalid clock frequency %v MHz", cfg.ClockFrequency)
	case cfg.UseEdep && cfg.Q0 <= 0:
		return fmt.Errorf("crtsim: invalid MIP normalisation Q0=%v", cfg.Q0)
	case cfg.TDelaySigma == 0 || cfg.TDelayRMSGausSigma == 0 || cfg.TDelayRMSExpScale == 0:
		return fmt.Errorf("crtsim: invalid time-walk model (null width)")
	case cfg.DeadTime < 0 || cfg.BiasTime < 0:
		return fmt.Errorf("crtsim: invalid dead time (%v µs) or bias time (%v µs)", cfg.DeadTime, cfg.BiasTime)
	case cfg.LayerCoincidenceWindowC < 0 || cfg.LayerCoincidenceWindowM < 0 || cfg.LayerCoincidenceWindowD < 0:
		return fmt.Errorf("crtsim: invalid negative layer coincidence window")
	case cfg.Workers < 0:
		return fmt.Errorf("crtsim: invalid number of workers (%d)", cfg.Workers)
	}
	return nil
}

// Apply overrides configuration values from a set of named parameters, as
// stored in the conditions database. Boolean parameters are true when
// non-zero.
func (cfg *Config) Apply(params map[string]float64) error {
	var (
		rv    = reflect.ValueOf(cfg).Elem()
		rt    = rv.Type()
		index = make(map[string]int, rt.NumField())
	)
	for i := 0; i < rt.NumField(); i++ {
		name := strings.Split(rt.Field(i).Tag.Get("toml"), ",")[0]
		index[name] = i
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		i, ok := index[k]
		if !ok {
			return fmt.Errorf("crtsim: unknown config parameter %q", k)
		}
		var (
			v  = params[k]
			fv = rv.Field(i)
		)
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(v != 0)
		case reflect.Float64:
			fv.SetFloat(v)
		case reflect.Uint64:
			if v < 0 {
				return fmt.Errorf("crtsim: invalid negative value for %q (v=%v)", k, v)
			}
			fv.SetUint(uint64(v))
		case reflect.Int:
			fv.SetInt(int64(v))
		default:
			panic(fmt.Errorf("crtsim: unhandled config field kind %v", fv.Kind()))
		}
	}
	return cfg.Validate()
}

func (cfg *Config) threshold(fam geom.Family) float64 {
	switch fam {
	case geom.CERN:
		return cfg.QThresholdC
	case geom.DoubleChooz:
		return cfg.QThresholdD
	case geom.MINOS:
		return cfg.QThresholdM
	}
	panic(fmt.Errorf("crtsim: invalid family %v", fam))
}

func (cfg *Config) coincidence(fam geom.Family) bool {
	switch fam {
	case geom.CERN:
		return cfg.ApplyCoincidenceC
	case geom.DoubleChooz:
		return cfg.ApplyCoincidenceD
	case geom.MINOS:
		return cfg.ApplyCoincidenceM
	}
	panic(fmt.Errorf("crtsim: invalid family %v", fam))
}

// layerWindow returns the layer coincidence window of a family, in µs.
func (cfg *Config) layerWindow(fam geom.Family) float64 {
	const ns = 1e-3
	switch fam {
	case geom.CERN:
		return cfg.LayerCoincidenceWindowC * ns
	case geom.DoubleChooz:
		return cfg.LayerCoincidenceWindowD * ns
	case geom.MINOS:
		return cfg.LayerCoincidenceWindowM * ns
	}
	panic(fmt.Errorf("crtsim: invalid family %v", fam))
}

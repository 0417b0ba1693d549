// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package collab

import (
	"context"
	"os/exec"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/errgroup"
)

// ProbeTarget names one binary/remote-key pair to verify.
type ProbeTarget struct {
	Name          string // "stt" | "tts" | "decoder"
	Command       string // configured local binary command, may be empty
	RemoteAPIKey  string // configured remote-service credential, may be empty
	MissingSystem string // system event code to emit when unavailable
}

// ProbeResult reports whether a target's local binary was found on
// PATH and whether it should be considered available overall (binary
// present OR a remote fallback is configured).
type ProbeResult struct {
	Name      string
	Available bool
	Missing   string // system event code, set only when Available is false
}

// VerifyTools resolves each target's argv[0] via exec.LookPath in
// parallel, bounded by a 3s timeout. Grounded on loqalabs'
// mattn/go-shellwords command-parsing convention, run through
// golang.org/x/sync/errgroup for the fan-out (part of the same repo's
// combined dependency surface), since probing must never block
// signaling.
func VerifyTools(ctx context.Context, targets []ProbeTarget) []ProbeResult {
	results := make([]ProbeResult, len(targets))

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = probeOne(ctx, target)
			return nil
		})
	}
	_ = g.Wait() // probeOne never returns an error; Wait only joins goroutines

	return results
}

func probeOne(ctx context.Context, target ProbeTarget) ProbeResult {
	if target.RemoteAPIKey != "" {
		return ProbeResult{Name: target.Name, Available: true}
	}
	if target.Command == "" {
		return ProbeResult{Name: target.Name, Available: false, Missing: target.MissingSystem}
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(target.Command)
	if err != nil || len(argv) == 0 {
		return ProbeResult{Name: target.Name, Available: false, Missing: target.MissingSystem}
	}

	found := make(chan error, 1)
	go func() {
		_, err := exec.LookPath(argv[0])
		found <- err
	}()
	select {
	case err := <-found:
		if err != nil {
			return ProbeResult{Name: target.Name, Available: false, Missing: target.MissingSystem}
		}
		return ProbeResult{Name: target.Name, Available: true}
	case <-ctx.Done():
		return ProbeResult{Name: target.Name, Available: false, Missing: target.MissingSystem}
	}
}

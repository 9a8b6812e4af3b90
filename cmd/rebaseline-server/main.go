// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command rebaseline-server reconciles actual image-test results
// against checked-in baselines. It can write the reconciled summary to
// a file, or serve it over HTTP to the rebaseline viewer and accept
// baseline edits back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/flagenum"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"

	"rebaseline/diffstore"
	"rebaseline/frontend"
	"rebaseline/results"
)

// DefaultActualsDir is where the actual-results tree is looked for.
const DefaultActualsDir = ".gm-actuals"

// DefaultWorkDir is where generated diff artifacts are kept.
const DefaultWorkDir = ".generated-images"

// KindType is the type for enum values of the -results argument.
type KindType results.ResultKind

var _ flag.Value = (*KindType)(nil)

// KindTypeEnum is the corresponding Enum type for the -results
// argument.
var KindTypeEnum = flagenum.Enum{
	"all":      KindType(results.KindAll),
	"failures": KindType(results.KindFailures),
}

// String implements flag.Value
func (t *KindType) String() string {
	return KindTypeEnum.FlagString(*t)
}

// Set implements flag.Value
func (t *KindType) Set(v string) error {
	return KindTypeEnum.FlagSet(t, v)
}

type commonFlags struct {
	subcommands.CommandRunBase
	actualsDir  string
	expectedDir string
	workDir     string
}

func commonFlagVars(c *commonFlags) {
	c.Flags.StringVar(&c.actualsDir, "actuals", DefaultActualsDir, "Directory containing all actual-result JSON files.")
	c.Flags.StringVar(&c.expectedDir, "expectations", "", "Directory containing all expected-result JSON files. (required)")
	c.Flags.StringVar(&c.workDir, "workdir", DefaultWorkDir, "Directory within which to keep generated diffs.")
}

func (c *commonFlags) newService(ctx context.Context) (*results.Service, results.Config, error) {
	if c.expectedDir == "" {
		return nil, results.Config{}, errors.Reason("no expectations directory specified (-expectations)").Err()
	}
	diffs, err := diffstore.New(c.workDir)
	if err != nil {
		return nil, results.Config{}, err
	}
	cfg := results.Config{
		ActualsDir:  c.actualsDir,
		ExpectedDir: c.expectedDir,
		DiffStore:   diffs,
	}
	svc, err := results.NewService(ctx, cfg)
	return svc, cfg, err
}

type reportRun struct {
	commonFlags
	outFile string
	kind    KindType
}

func (c *reportRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if c.outFile == "" {
		errors.Log(ctx, errors.Reason("no output file specified (-outfile)").Err())
		return 1
	}
	svc, _, err := c.newService(ctx)
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	pkg, err := svc.PackagedResultsOfType(ctx, results.ResultKind(c.kind), nil, false, true)
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	b, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	if err := ioutil.WriteFile(c.outFile, append(b, '\n'), 0644); err != nil {
		errors.Log(ctx, err)
		return 1
	}
	logging.Infof(ctx, "Wrote %s results to %s", c.kind, c.outFile)
	return 0
}

type serveRun struct {
	commonFlags
	port     int
	editable bool
	export   bool
}

func (c *serveRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	svc, cfg, err := c.newService(ctx)
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}

	// An editable server open to other hosts would let anyone rewrite
	// the baselines, so editable servers bind loopback unless exporting
	// is asked for explicitly.
	host := "127.0.0.1"
	if c.export {
		host = ""
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", c.port))

	server := frontend.NewServer(svc, cfg, c.editable, c.export)
	logging.Infof(ctx, "Serving results on %s (editable=%t, exported=%t)", addr, c.editable, c.export)
	if err := http.ListenAndServe(addr, server.Routes(ctx)); err != nil {
		errors.Log(ctx, err)
		return 1
	}
	return 0
}

var (
	cmdReport = &subcommands.Command{
		UsageLine: "report <options>",
		ShortDesc: "Writes a reconciled result summary to a file.",
		LongDesc:  "Loads actual and expected results, reconciles them, and writes the packaged summary as JSON.",
		CommandRun: func() subcommands.CommandRun {
			c := &reportRun{}
			commonFlagVars(&c.commonFlags)
			c.Flags.StringVar(&c.outFile, "outfile", "", "File to write the result summary into. (required)")
			c.Flags.Var(&c.kind, "results", "Which result types to include: "+KindTypeEnum.Choices()+". (default: \"failures\")")
			c.kind = KindType(results.KindFailures)
			return c
		},
	}

	cmdServe = &subcommands.Command{
		UsageLine: "serve <options>",
		ShortDesc: "Serves reconciled results over HTTP.",
		LongDesc:  "Loads actual and expected results, reconciles them, and serves them to the rebaseline viewer. With -editable, accepts baseline edits back.",
		CommandRun: func() subcommands.CommandRun {
			c := &serveRun{}
			commonFlagVars(&c.commonFlags)
			c.Flags.IntVar(&c.port, "port", 8888, "Port to listen on.")
			c.Flags.BoolVar(&c.editable, "editable", false, "Accept baseline edits from the viewer.")
			c.Flags.BoolVar(&c.export, "export", false, "Listen on all interfaces, not just loopback.")
			return c
		},
	}
)

func main() {
	application := &cli.Application{
		Name:  "rebaseline-server",
		Title: "Image-test rebaseline server",
		Context: func(ctx context.Context) context.Context {
			goLoggerCfg := gologger.LoggerConfig{Out: os.Stderr}
			goLoggerCfg.Format = "[%{level:.1s} %{time:2006-01-02 15:04:05}] %{message}"
			ctx = goLoggerCfg.Use(ctx)

			ctx = (&logging.Config{Level: logging.Info}).Set(ctx)
			return ctx
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,
			cmdReport,
			cmdServe,
		},
	}
	os.Exit(subcommands.Run(application, nil))
}

// Copyright 2022 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-logr/zapr"
	"github.com/pterm/pterm"
	"github.com/willabides/kongplete"
	"go.uber.org/zap"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sargunv/jvl/internal/version"
)

type versionFlag bool

// BeforeApply indicates that we want to execute the logic before running any
// commands.
func (v versionFlag) BeforeApply(ctx *kong.Context) error { // nolint:unparam
	fmt.Fprintln(ctx.Stdout, version.GetVersion())
	ctx.Exit(0)
	return nil
}

// AfterApply configures global settings before executing commands.
func (c *cli) AfterApply(ctx *kong.Context) error { //nolint:unparam
	log := logging.NewNopLogger()
	if c.Debug {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = logging.NewLogrLogger(zapr.NewLogger(zl))
	}
	ctx.BindTo(log, (*logging.Logger)(nil))

	if !c.Pretty {
		pterm.DisableStyling()
	}
	return nil
}

type cli struct {
	Version versionFlag `short:"v" name:"version" help:"Print version and exit."`
	Debug   bool        `short:"d" name:"debug" help:"Enable debug logging (to stderr)."`
	Pretty  bool        `name:"pretty" default:"true" negatable:"" help:"Colorize terminal output."`

	Check checkCmd `cmd:"" help:"Validate JSON/JSONC files against their schemas."`
	LSP   lspCmd   `cmd:"" name:"lsp" help:"Start the jvl language server on stdio."`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`
}

func main() {
	c := cli{}

	parser := kong.Must(&c,
		kong.Name("jvl"),
		kong.Description("A JSON/JSONC validation toolchain."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}))

	kongplete.Complete(parser)

	ktx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ktx.Run(); err != nil {
		if err == errValidationFailed {
			// Diagnostics were already rendered.
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "jvl:", err)
		os.Exit(2)
	}
}

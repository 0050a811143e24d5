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
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sargunv/jvl/internal/config"
	"github.com/sargunv/jvl/internal/coord"
	"github.com/sargunv/jvl/internal/report"
	"github.com/sargunv/jvl/internal/schema"
	"github.com/sargunv/jvl/internal/validate"
)

const (
	maxParallelChecks = 8
	watchSettle       = 200 * time.Millisecond
)

// errValidationFailed signals main to exit 1 after diagnostics have already
// been rendered.
var errValidationFailed = errors.New("validation failed")

type checkCmd struct {
	Patterns []string `arg:"" optional:"" name:"patterns" help:"Files or globs to validate. Defaults to the files declared in jvl.json."`

	Strict  bool   `help:"Treat documents without a resolvable schema as errors."`
	NoCache bool   `help:"Bypass the on-disk schema cache."`
	Config  string `type:"path" help:"Path to jvl.json. Defaults to walking up from the current directory."`
	JSON    bool   `name:"json" help:"Emit machine-readable JSON instead of a terminal report."`
	Watch   bool   `help:"Re-run validation whenever a watched file changes."`
}

// Run executes the check command.
func (c *checkCmd) Run(log logging.Logger) error {
	fs := afero.NewOsFs()

	cacheDir, err := schema.DefaultCacheDir()
	if err != nil {
		return errors.Wrap(err, "failed to locate schema cache directory")
	}
	schemas := schema.NewCache(schema.NewFetcher(fs, cacheDir), log)
	configs := config.NewCache(fs, log)

	if !c.Watch {
		return c.runOnce(context.Background(), fs, configs, schemas, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.watch(ctx, fs, configs, schemas, log)
}

func (c *checkCmd) runOnce(ctx context.Context, fs afero.Fs, configs *config.Cache, schemas *schema.Cache, log logging.Logger) error {
	files, err := c.discover(fs)
	if err != nil {
		return err
	}

	reports, err := c.validateAll(ctx, fs, configs, schemas, files, log)
	if err != nil {
		return err
	}

	if c.JSON {
		if err := report.RenderJSON(os.Stdout, reports); err != nil {
			return err
		}
	} else {
		report.Render(os.Stdout, reports)
	}

	for _, r := range reports {
		if r.HasErrors() {
			return errValidationFailed
		}
	}
	log.Debug("all files valid", "count", len(files))
	return nil
}

// discover expands the command's patterns, or falls back to the files the
// governing jvl.json declares, rooted at its project directory.
func (c *checkCmd) discover(fs afero.Fs) ([]string, error) {
	if len(c.Patterns) > 0 {
		var files []string
		for _, p := range c.Patterns {
			matches, err := doublestar.FilepathGlob(p)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid glob %q", p)
			}
			if matches == nil {
				// A non-glob argument names a concrete file; a glob with
				// zero matches contributes nothing.
				if exists, _ := afero.Exists(fs, p); exists {
					matches = []string{p}
				}
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
		return files, nil
	}

	configPath := c.Config
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		located, ok := config.Locate(fs, cwd)
		if !ok {
			return nil, errors.New("no jvl.json found; pass file patterns or create a configuration")
		}
		configPath = located
	}

	raw, err := afero.ReadFile(fs, configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	parsed, err := config.Parse(raw)
	if err != nil {
		return nil, err
	}
	compiled, err := config.Compile(parsed, configPath)
	if err != nil {
		return nil, err
	}

	var files []string
	err = afero.Walk(fs, compiled.ProjectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Base(path) == config.ConfigFileName {
			return nil
		}
		rel, relErr := filepath.Rel(compiled.ProjectRoot, path)
		if relErr != nil {
			return nil
		}
		if compiled.FileFilter.Match(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk project root")
	}
	sort.Strings(files)
	return files, nil
}

func (c *checkCmd) validateAll(ctx context.Context, fs afero.Fs, configs *config.Cache, schemas *schema.Cache, files []string, log logging.Logger) ([]report.FileReport, error) {
	reports := make([]report.FileReport, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChecks)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			abs, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			text, err := afero.ReadFile(fs, f)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", f)
			}
			resolved, err := config.Resolve(configs, abs)
			if err != nil {
				return err
			}
			if resolved.ConfigErr != nil {
				// Mainly reachable in watch mode: a broken jvl.json save
				// falls back to the last good configuration.
				log.Info("configuration reload failed, using last good", "error", resolved.ConfigErr)
			}
			result := validate.ValidateFile(ctx, abs, text, resolved.Source, schemas, c.NoCache, c.Strict || resolved.Strict)
			reports[i] = report.FileReport{
				Path:        f,
				Source:      text,
				Diagnostics: fillLines(text, result.Diagnostics),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// fillLines completes diagnostics that carry only a byte offset with their
// 1-based line and column.
func fillLines(source []byte, diags []coord.FileDiagnostic) []coord.FileDiagnostic {
	var ls coord.LineStarts
	for i, d := range diags {
		if d.Location == nil || d.Location.Line != 0 {
			continue
		}
		if ls == nil {
			ls = coord.ComputeLineStarts(source)
		}
		line, col := ls.OffsetToLineCol(d.Location.Offset)
		diags[i].Location.Line = line
		diags[i].Location.Column = col
	}
	return diags
}

// watch re-runs the check whenever a file under the project root changes,
// invalidating the config cache on jvl.json events and evicting edited
// local schemas so the next run recompiles them.
func (c *checkCmd) watch(ctx context.Context, fs afero.Fs, configs *config.Cache, schemas *schema.Cache, log logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close() // nolint:errcheck

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	if c.Config != "" {
		root = filepath.Dir(c.Config)
	} else if located, ok := config.Locate(fs, root); ok {
		root = filepath.Dir(located)
	}
	if err := addWatchDirs(fs, watcher, root); err != nil {
		return err
	}

	runErr := c.runOnce(ctx, fs, configs, schemas, log)
	if runErr != nil && runErr != errValidationFailed {
		return runErr
	}

	var settle *time.Timer
	var settleCh <-chan time.Time // nil until the first event; a nil channel never fires
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.Debug("file event", "op", event.Op.String(), "path", event.Name)
			if filepath.Base(event.Name) == config.ConfigFileName {
				configs.Invalidate(event.Name)
			}
			schemas.Evict(schema.NewFileSource(event.Name))
			if info, statErr := fs.Stat(event.Name); statErr == nil && info.IsDir() {
				_ = addWatchDirs(fs, watcher, event.Name)
			}
			if settle == nil {
				settle = time.NewTimer(watchSettle)
			} else {
				settle.Reset(watchSettle)
			}
			settleCh = settle.C
		case <-settleCh:
			settleCh = nil
			if err := c.runOnce(ctx, fs, configs, schemas, log); err != nil && err != errValidationFailed {
				return err
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("watch error", "error", watchErr)
		}
	}
}

func addWatchDirs(fs afero.Fs, watcher *fsnotify.Watcher, root string) error {
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil // nolint:nilerr
		}
		return watcher.Add(path)
	})
}

// Package convert hands completed cycle directories to an external
// transcoder and removes the raw inputs afterwards.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/i474232898/atmostream/internal/common"
	"github.com/i474232898/atmostream/internal/forecast"
)

// ExecConverter runs an external command once per completed cycle. Each
// argument may hold the placeholders {dir}, {source}, {model} and
// {variables}; variables are joined with commas.
type ExecConverter struct {
	log     *slog.Logger
	command []string
}

func NewExecConverter(log *slog.Logger, command []string) (*ExecConverter, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, &forecast.ConfigurationError{Field: "convert.command", Message: "must not be empty"}
	}
	return &ExecConverter{log: log, command: command}, nil
}

func (c *ExecConverter) Convert(ctx context.Context, dir string, model forecast.Model, variables []string) error {
	r := strings.NewReplacer(
		"{dir}", dir,
		"{source}", string(model.Source),
		"{model}", model.Name,
		"{variables}", strings.Join(variables, ","),
	)
	args := make([]string, len(c.command))
	for i, a := range c.command {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Info("convert: running converter", "dir", dir, "command", args[0])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w: %s", forecast.ErrConversionFailure, args[0], err, strings.TrimSpace(stderr.String()))
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		c.log.Debug("convert: converter output", "output", out)
	}
	return nil
}

// rawPatterns are the raw grid files and their index companions.
var rawPatterns = []string{"*.grib2", "*.grib2*idx", "*.grb2", "*.grb2*idx"}

// GlobRemover deletes raw grid files whose name holds one of the requested
// variables.
type GlobRemover struct {
	log *slog.Logger
}

func NewGlobRemover(log *slog.Logger) *GlobRemover {
	return &GlobRemover{log: log}
}

func (r *GlobRemover) RemoveRaw(ctx context.Context, dir string, model forecast.Model, variables []string) error {
	var removed int
	var errs []error
	for _, pattern := range rawPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if !common.HasAny(filepath.Base(m), variables...) {
				continue
			}
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	r.log.Info("convert: removed raw files", "dir", dir, "model", model.Name, "count", removed)
	return errors.Join(errs...)
}

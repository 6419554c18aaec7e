// Command shard evaluates a shard script and prints the resulting hull and
// fragment meshes as JSON.
//
//	shard eval rock.lisp --config shard.yaml --verbose
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/chazu/shard/pkg/config"
)

// errFailed signals that the result carried errors; they are already in the
// printed JSON.
var errFailed = errors.New("evaluation reported errors")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if err != errFailed {
			fmt.Fprintln(os.Stderr, "shard:", err)
		}
		os.Exit(1)
	}
}

// run parses args, evaluates the script and writes the JSON result to out.
func run(args []string, out io.Writer) error {
	cli := kingpin.New("shard", "Shatter solids along 3D Voronoi cells.")
	verbose := cli.Flag("verbose", "Enable debug logging.").Short('v').Bool()
	cfgPath := cli.Flag("config", "YAML file overriding tolerances and budgets.").Short('c').String()

	evalCmd := cli.Command("eval", "Evaluate a script and print meshes as JSON.")
	script := evalCmd.Arg("script", "Script to evaluate.").Required().ExistingFile()

	cmd, err := cli.Parse(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	switch cmd {
	case evalCmd.FullCommand():
		source, err := os.ReadFile(*script)
		if err != nil {
			return errors.Wrapf(err, "read %s", *script)
		}
		logger.Debug("evaluating", zap.String("script", *script))
		result := NewApp(cfg, logger).Evaluate(string(source))

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return errors.Wrap(err, "encode result")
		}
		if len(result.Errors) > 0 {
			return errFailed
		}
	}
	return nil
}

// newLogger builds a development logger when verbose, otherwise a production
// logger that only reports warnings and above.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

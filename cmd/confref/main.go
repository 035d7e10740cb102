// Command confref resolves placeholders in a configuration document and
// prints the result.
//
//	confref resolve config.yaml --format json
//	confref get config.yaml db.url
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/confref/internal/document"
	"github.com/eugenenazirov/confref/internal/logging"
	"github.com/eugenenazirov/confref/internal/resolver"
	"github.com/eugenenazirov/confref/internal/store"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	terminated := false
	exitCode := exitOK

	app := kingpin.New("confref", "Resolve {{key}} placeholders in YAML and JSON configuration documents")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.Terminate(func(code int) {
		terminated = true
		exitCode = code
	})

	openDelimiter := app.Flag("open-delimiter", "Placeholder opening delimiter").Default(resolver.DefaultOpenDelimiter).String()
	closeDelimiter := app.Flag("close-delimiter", "Placeholder closing delimiter").Default(resolver.DefaultCloseDelimiter).String()
	verbose := app.Flag("verbose", "Log every rewritten key to stderr").Short('v').Bool()

	resolveCmd := app.Command("resolve", "Print a document with every placeholder resolved")
	resolveFile := resolveCmd.Arg("file", "YAML or JSON document").Required().ExistingFile()
	resolveFormat := resolveCmd.Flag("format", "Output format (yaml or json); defaults to the input format").Enum("yaml", "yml", "json")

	getCmd := app.Command("get", "Print a single resolved value")
	getFile := getCmd.Arg("file", "YAML or JSON document").Required().ExistingFile()
	getKey := getCmd.Arg("key", "Dotted key, e.g. db.url").Required().String()

	command, err := app.Parse(args)
	if terminated {
		return exitCode
	}
	if err != nil {
		app.Errorf("%v", err)
		return exitUsage
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		app.Errorf("initialize logger: %v", err)
		return exitError
	}
	defer func() {
		_ = logger.Sync()
	}()

	res, err := resolver.New(
		resolver.WithDelimiters(*openDelimiter, *closeDelimiter),
		resolver.WithLogger(logger),
	)
	if err != nil {
		app.Errorf("%v", err)
		return exitUsage
	}

	switch command {
	case resolveCmd.FullCommand():
		err = resolveDocument(res, *resolveFile, *resolveFormat, stdout)
	case getCmd.FullCommand():
		err = printValue(res, *getFile, *getKey, stdout)
	}
	if err != nil {
		logger.Debug("command failed", zap.String("command", command), zap.Error(err))
		app.Errorf("%v", err)
		return exitError
	}
	return exitOK
}

func resolveDocument(res *resolver.Resolver, path, formatName string, out io.Writer) error {
	src, format, err := document.OpenStore(path)
	if err != nil {
		return err
	}
	if formatName != "" {
		if format, err = document.ParseFormat(formatName); err != nil {
			return err
		}
	}

	resolved, err := res.Parse(src)
	if err != nil {
		return err
	}

	data, err := document.Encode(resolved.All(), format)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func printValue(res *resolver.Resolver, path, key string, out io.Writer) error {
	src, _, err := document.OpenStore(path)
	if err != nil {
		return err
	}
	if !src.Has(key) {
		return fmt.Errorf("key %q not found in %s", key, path)
	}

	resolved, err := res.Parse(src)
	if err != nil {
		return err
	}

	value, _ := resolved.Get(key)
	if tree, ok := value.(*store.Tree); ok {
		data, err := document.EncodeJSON(tree)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	_, err = fmt.Fprintln(out, store.Text(value))
	return err
}

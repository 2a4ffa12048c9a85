package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-logr/stdr"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/xmlmodel"
)

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type document struct {
	res  *xmlmodel.ReadResult
	err  error
	path string
	out  string
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("xmlmodel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var modelPaths stringList
	fs.Var(&modelPaths, "model", "path to a meta-model package (.json, .yaml); repeatable")
	rootType := fs.String("root", "", "expected root type, as prefix:Type")
	writeBack := fs.Bool("write", false, "write the re-serialized document to stdout")
	xmlDecl := fs.Bool("decl", false, "prepend an XML declaration when writing")
	dump := fs.Bool("dump", false, "dump the instance graph to stdout")
	verbosity := fs.Int("v", 0, "log verbosity")
	maxDepth := fs.Int("max-depth", 0, "maximum element depth (0 uses default)")
	maxAttrs := fs.Int("max-attrs", 0, "maximum attributes per element (0 uses default)")
	cpuProfilePath := fs.String("cpuprofile", "", "write CPU profile to file")
	memProfilePath := fs.String("memprofile", "", "write memory profile to file")
	var usageErr error
	fs.Usage = func() {
		usageErr = errors.Join(
			usageErr,
			writef(stderr, "Usage: %s --model <package.json> --root <prefix:Type> <document.xml>...\n\n", os.Args[0]),
			writeln(stderr, "Reads XML documents into typed instances and reports warnings."),
			writeln(stderr),
			writeln(stderr, "Options:"),
		)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	usage := func(msg string) int {
		if err := writeln(stderr, "error: "+msg); err != nil {
			return 1
		}
		fs.Usage()
		if usageErr != nil {
			return 1
		}
		return 2
	}
	if len(modelPaths) == 0 {
		return usage("--model is required")
	}
	if *rootType == "" {
		return usage("--root is required")
	}
	if fs.NArg() == 0 {
		return usage("at least one XML file argument is required")
	}

	if *cpuProfilePath != "" {
		stopCPUProfile, err := startCPUProfile(*cpuProfilePath)
		if err != nil {
			_ = writef(stderr, "error starting CPU profile: %v\n", err)
			return 1
		}
		defer func() {
			if err := stopCPUProfile(); err != nil {
				_ = writef(stderr, "error stopping CPU profile: %v\n", err)
			}
		}()
	}

	if *memProfilePath != "" {
		defer func() {
			if err := writeMemProfile(*memProfilePath); err != nil {
				_ = writef(stderr, "error writing memory profile: %v\n", err)
			}
		}()
	}

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(stderr, "", log.LstdFlags))

	model, err := xmlmodel.LoadFiles(modelPaths, xmlmodel.WithLogr(logger))
	if err != nil {
		_ = writef(stderr, "error loading model: %v\n", err)
		return 1
	}

	readOpts := xmlmodel.NewReadOptions().WithMaxDepth(*maxDepth).WithMaxAttrs(*maxAttrs)
	if err := readOpts.Validate(); err != nil {
		return usage(err.Error())
	}
	writeOpts := xmlmodel.NewWriteOptions().WithXMLDeclaration(*xmlDecl)

	docs := readAll(context.Background(), model, fs.Args(), *rootType, readOpts, writeOpts, *writeBack)

	code := 0
	for _, doc := range docs {
		if doc.err != nil {
			code = 1
			if err := writef(stderr, "%s: %v\n", doc.path, doc.err); err != nil {
				return 1
			}
			continue
		}
		for _, w := range doc.res.Warnings {
			if err := writef(stderr, "%s: %s\n", doc.path, w.String()); err != nil {
				return 1
			}
		}
		if *dump {
			spew.Fdump(stdout, doc.res.Root.Snapshot())
		}
		if *writeBack {
			if err := writeln(stdout, doc.out); err != nil {
				return 1
			}
		}
	}
	return code
}

// readAll reads every document in parallel and returns the outcomes in
// argument order.
func readAll(ctx context.Context, model *xmlmodel.Model, paths []string, rootType string, readOpts xmlmodel.ReadOptions, writeOpts xmlmodel.WriteOptions, writeBack bool) []document {
	docs := make([]document, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			doc := document{path: path}
			doc.res, doc.err = model.ReadFile(ctx, path, rootType, readOpts)
			if doc.err == nil && writeBack {
				doc.out, doc.err = model.Write(doc.res.Root, writeOpts)
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

func startCPUProfile(path string) (func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return nil, fmt.Errorf("start cpu profile %s: %w (close failed: %w)", path, err, closeErr)
		}
		return nil, fmt.Errorf("start cpu profile %s: %w", path, err)
	}
	return func() error {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			return fmt.Errorf("close cpu profile %s: %w", path, err)
		}
		return nil
	}, nil
}

func writeMemProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mem profile %s: %w", path, err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return fmt.Errorf("write mem profile %s: %w (close failed: %w)", path, err, closeErr)
		}
		return fmt.Errorf("write mem profile %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close mem profile %s: %w", path, err)
	}
	return nil
}

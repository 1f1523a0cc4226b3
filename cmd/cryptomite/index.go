package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cryptomite-go/cryptomite/internal/docindex"
	"github.com/cryptomite-go/cryptomite/internal/docindex/source"
	"github.com/cryptomite-go/cryptomite/pkg/config"
)

// errIndexesDiffer is returned by "index diff -exit-code" when the indexes
// are not equal.
var errIndexesDiffer = errors.New("indexes differ")

type indexCommand struct {
	name    string
	usage   string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, src *source.Source, fs *indexFlags, args []string, stdout io.Writer) error
}

// indexFlags is the union of the flags index subcommands accept.
type indexFlags struct {
	json     bool
	term     string
	title    string
	object   string
	kind     string
	doc      string
	manifest string
	exitCode bool
}

var indexCommands = []indexCommand{
	{"decode", "decode <uri>", 1, 1, indexDecode},
	{"validate", "validate <uri>...", 1, -1, indexValidate},
	{"stats", "stats <uri>", 1, 1, indexStats},
	{"lookup", "lookup [-term t|-title t|-object name|-kind k|-doc name] <uri>", 1, 1, indexLookup},
	{"build", "build -manifest manifest.yaml <out-uri>", 1, 1, indexBuild},
	{"diff", "diff [-exit-code] <a-uri> <b-uri>", 2, 2, indexDiff},
	{"copy", "copy <src-uri> <dst-uri>", 2, 2, indexCopy},
}

func runIndex(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usageError{fmt.Errorf("index: missing subcommand; one of %s", indexCommandNames())}
	}
	var cmd *indexCommand
	for i := range indexCommands {
		if indexCommands[i].name == args[0] {
			cmd = &indexCommands[i]
		}
	}
	if cmd == nil {
		return usageError{fmt.Errorf("index: unknown subcommand %q; one of %s", args[0], indexCommandNames())}
	}

	fs := newFlagSet("index " + cmd.name)
	fs.Usage = func() { fmt.Fprintln(fs.Output(), "usage: cryptomite index", cmd.usage); fs.PrintDefaults() }
	configPath := fs.String("config", "", "config file for minio:// and s3:// storage (default: environment only)")
	var f indexFlags
	fs.BoolVar(&f.json, "json", false, "print JSON instead of the Search.setIndex script (decode)")
	fs.StringVar(&f.term, "term", "", "look up a body term")
	fs.StringVar(&f.title, "title", "", "look up a title term")
	fs.StringVar(&f.object, "object", "", "look up an object by full name")
	fs.StringVar(&f.kind, "kind", "", "list objects of a kind")
	fs.StringVar(&f.doc, "doc", "", "look up a document by docname")
	fs.StringVar(&f.manifest, "manifest", "", "YAML manifest to build from")
	fs.BoolVar(&f.exitCode, "exit-code", false, "exit with status 1 when the indexes differ (diff)")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < cmd.minArgs || (cmd.maxArgs >= 0 && len(rest) > cmd.maxArgs) {
		return usageError{fmt.Errorf("usage: cryptomite index %s", cmd.usage)}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	src, err := source.NewFromConfig(ctx, cfg.Docs, cfg.Storage)
	if err != nil {
		return err
	}
	return cmd.run(ctx, src, &f, rest, stdout)
}

func indexCommandNames() string {
	names := make([]string, len(indexCommands))
	for i, c := range indexCommands {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

func indexDecode(ctx context.Context, src *source.Source, f *indexFlags, args []string, stdout io.Writer) error {
	idx, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	encode := docindex.Encode
	if f.json {
		encode = docindex.EncodeJSON
	}
	out, err := encode(idx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, strings.TrimRight(string(out), "\n"))
	return err
}

// indexValidate checks every uri and lists each problem found. It fails if
// any index is malformed or invalid.
func indexValidate(ctx context.Context, src *source.Source, _ *indexFlags, args []string, stdout io.Writer) error {
	bad := 0
	for _, uri := range args {
		problems, err := validateOne(ctx, src, uri)
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			fmt.Fprintf(stdout, "%s: ok\n", uri)
			continue
		}
		bad++
		fmt.Fprintf(stdout, "%s: %d problem(s)\n", uri, len(problems))
		for _, p := range problems {
			fmt.Fprintf(stdout, "  %s\n", p)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d indexes failed validation", bad, len(args))
	}
	return nil
}

// validateOne returns the problems of the index at uri. Errors reading the
// document are returned as err; decode failures count as a problem.
func validateOne(ctx context.Context, src *source.Source, uri string) ([]string, error) {
	data, err := src.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	idx, err := docindex.Decode(data)
	if err != nil {
		return []string{err.Error()}, nil
	}
	err = docindex.Validate(idx)
	var verr *docindex.ValidationError
	switch {
	case err == nil:
		return nil, nil
	case errors.As(err, &verr):
		return verr.Problems, nil
	default:
		return []string{err.Error()}, nil
	}
}

func indexStats(ctx context.Context, src *source.Source, _ *indexFlags, args []string, stdout io.Writer) error {
	idx, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(stdout, idx.Stats())
}

func indexLookup(ctx context.Context, src *source.Source, f *indexFlags, args []string, stdout io.Writer) error {
	set := 0
	for _, v := range []string{f.term, f.title, f.object, f.kind, f.doc} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return usageError{fmt.Errorf("lookup needs exactly one of -term, -title, -object, -kind, -doc")}
	}
	idx, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	var result any
	switch {
	case f.term != "":
		result, err = idx.Term(f.term)
	case f.title != "":
		result, err = idx.TitleTerm(f.title)
	case f.object != "":
		result, err = idx.Object(f.object)
	case f.doc != "":
		result, err = idx.DocumentByName(f.doc)
	default:
		refs := idx.ObjectsOfType(f.kind)
		if len(refs) == 0 {
			err = fmt.Errorf("%w: no objects of kind %q", docindex.ErrNotFound, f.kind)
		}
		result = refs
	}
	if err != nil {
		return err
	}
	return writeJSON(stdout, result)
}

func indexBuild(ctx context.Context, src *source.Source, f *indexFlags, args []string, stdout io.Writer) error {
	if f.manifest == "" {
		return usageError{fmt.Errorf("build needs -manifest")}
	}
	idx, err := docindex.LoadManifest(f.manifest)
	if err != nil {
		return err
	}
	if err := src.Save(ctx, args[0], idx); err != nil {
		return err
	}
	s := idx.Stats()
	_, err = fmt.Fprintf(stdout, "%s: %d documents, %d terms, %d objects\n", args[0], s.Documents, s.Terms, s.Objects)
	return err
}

func indexDiff(ctx context.Context, src *source.Source, f *indexFlags, args []string, stdout io.Writer) error {
	a, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	b, err := src.Load(ctx, args[1])
	if err != nil {
		return err
	}
	d, err := docindex.Diff(args[0], a, args[1], b)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(stdout, d); err != nil {
		return err
	}
	if d != "" && f.exitCode {
		return errIndexesDiffer
	}
	return nil
}

// indexCopy re-encodes an index between locations; compression follows
// each URI's suffix.
func indexCopy(ctx context.Context, src *source.Source, _ *indexFlags, args []string, stdout io.Writer) error {
	idx, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if err := src.Save(ctx, args[1], idx); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s -> %s\n", args[0], args[1])
	return err
}

package docindex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValidationError lists every invariant an index breaks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidIndex, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidIndex }

// Validate checks the structural invariants of idx and reports all
// violations at once. A nil return means every document number referenced
// by terms, title terms and objects is in range and the type tables agree.
func Validate(idx *Index) error {
	var errs errlist
	n := len(idx.DocNames)

	if len(idx.FileNames) != n {
		errs.add("filenames has %d entries, docnames has %d", len(idx.FileNames), n)
	}
	if len(idx.Titles) != n {
		errs.add("titles has %d entries, docnames has %d", len(idx.Titles), n)
	}
	seen := make(map[string]int, n)
	for i, name := range idx.DocNames {
		if j, dup := seen[name]; dup {
			errs.add("docname %q repeated at %d and %d", name, j, i)
			continue
		}
		seen[name] = i
	}

	checkPostings := func(what string, m map[string]Postings) {
		for _, term := range sortedKeys(m) {
			for _, p := range m[term] {
				if p.Doc < 0 || p.Doc >= n {
					errs.add("%s %q references document %d (index has %d)", what, term, p.Doc, n)
				}
			}
		}
	}
	checkPostings("term", idx.Terms)
	checkPostings("title term", idx.TitleTerms)

	for _, code := range sortedKeys(idx.ObjTypes) {
		name, ok := idx.ObjNames[code]
		if !ok {
			errs.add("objtypes code %s has no objnames entry", code)
			continue
		}
		if want := name.Domain + ":" + name.Kind; idx.ObjTypes[code] != want {
			errs.add("objtypes code %s is %q, objnames says %q", code, idx.ObjTypes[code], want)
		}
	}
	for _, code := range sortedKeys(idx.ObjNames) {
		if _, ok := idx.ObjTypes[code]; !ok {
			errs.add("objnames code %s has no objtypes entry", code)
		}
	}

	for _, ns := range idx.Namespaces() {
		for _, o := range idx.Objects[ns] {
			full := o.FullName()
			if o.Doc < 0 || o.Doc >= n {
				errs.add("object %q references document %d (index has %d)", full, o.Doc, n)
			}
			code := strconv.Itoa(o.TypeCode)
			if _, ok := idx.ObjTypes[code]; !ok {
				errs.add("object %q has unknown type code %d", full, o.TypeCode)
			}
			if o.Priority < -1 {
				errs.add("object %q has priority %d", full, o.Priority)
			}
		}
	}
	return errs.err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errlist aggregates validation problems into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if len(e.msgs) == 0 {
		return nil
	}
	return &ValidationError{Problems: e.msgs}
}

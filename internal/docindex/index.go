// Package docindex reads, writes, validates and builds documentation search
// indexes in the searchindex.js format produced by Sphinx. An index is an
// immutable inverted index from stemmed terms to document numbers, plus the
// document list, page titles and the API objects each page documents.
package docindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cryptomite-go/cryptomite/internal/tokenizer"
)

var (
	// ErrMalformedIndex is returned when the input cannot be parsed.
	ErrMalformedIndex = errors.New("malformed search index")
	// ErrInvalidIndex is returned when a parsed index breaks an invariant.
	ErrInvalidIndex = errors.New("invalid search index")
	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("not found in search index")
)

// Index is a decoded search index. Document numbers index DocNames,
// FileNames and Titles.
type Index struct {
	DocNames  []string
	FileNames []string
	Titles    []string
	// Objects maps a namespace ("" for top level, "pkg.Class" for members)
	// to its objects in generator order.
	Objects    map[string][]Object
	ObjNames   map[string]ObjName
	ObjTypes   map[string]string
	Terms      map[string]Postings
	TitleTerms map[string]Postings
	// EnvVersion records generator extension versions. Values are kept
	// verbatim.
	EnvVersion map[string]json.RawMessage
	// Extra holds top-level keys this package does not interpret, such as
	// alltitles or indexentries in newer generators.
	Extra map[string]json.RawMessage
}

// Object is one documented API object.
type Object struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Doc       int    `json:"doc"`
	TypeCode  int    `json:"type"`
	// Priority is 0 (important), 1 (default) or 2 (unimportant); -1 hides
	// the object from search results.
	Priority int `json:"priority"`
	// Anchor is "" when the anchor equals the full name and "-" when it is
	// "<kind>-<full name>".
	Anchor string `json:"anchor"`
}

// FullName joins namespace and name with a dot.
func (o Object) FullName() string {
	if o.Namespace == "" {
		return o.Name
	}
	return o.Namespace + "." + o.Name
}

// ObjName describes an object type code.
type ObjName struct {
	Domain  string `json:"domain"`
	Kind    string `json:"kind"`
	Display string `json:"display"`
}

// Posting is one occurrence of a term. Score is meaningful only when Scored
// is set; generators that rank terms emit [doc, score] pairs.
type Posting struct {
	Doc    int  `json:"doc"`
	Score  int  `json:"score,omitempty"`
	Scored bool `json:"-"`
}

// Postings lists the documents a term occurs in.
type Postings []Posting

// Docs returns the document numbers of p.
func (p Postings) Docs() []int {
	out := make([]int, len(p))
	for i, v := range p {
		out[i] = v.Doc
	}
	return out
}

// Document is a resolved document entry.
type Document struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FileName string `json:"filename"`
	Title    string `json:"title"`
}

// ObjectRef is an object resolved against the document list and type table.
type ObjectRef struct {
	Object
	FullName string   `json:"full_name"`
	Type     ObjName  `json:"object_type"`
	Document Document `json:"document"`
	AnchorID string   `json:"anchor_id"`
}

// TermHit is a posting resolved to its document.
type TermHit struct {
	Document
	Score int `json:"score,omitempty"`
}

// Stats summarises an index.
type Stats struct {
	Documents  int            `json:"documents"`
	Terms      int            `json:"terms"`
	TitleTerms int            `json:"title_terms"`
	Objects    int            `json:"objects"`
	Namespaces int            `json:"namespaces"`
	Postings   int            `json:"postings"`
	ByKind     map[string]int `json:"objects_by_kind"`
}

// Len returns the number of documents.
func (idx *Index) Len() int { return len(idx.DocNames) }

// Document returns document i.
func (idx *Index) Document(i int) (Document, error) {
	if i < 0 || i >= len(idx.DocNames) {
		return Document{}, fmt.Errorf("%w: document %d (index has %d)", ErrNotFound, i, len(idx.DocNames))
	}
	d := Document{ID: i, Name: idx.DocNames[i]}
	if i < len(idx.FileNames) {
		d.FileName = idx.FileNames[i]
	}
	if i < len(idx.Titles) {
		d.Title = idx.Titles[i]
	}
	return d, nil
}

// Documents returns every document in order.
func (idx *Index) Documents() []Document {
	out := make([]Document, 0, len(idx.DocNames))
	for i := range idx.DocNames {
		d, _ := idx.Document(i)
		out = append(out, d)
	}
	return out
}

// DocumentByName returns the document with the given docname.
func (idx *Index) DocumentByName(name string) (Document, error) {
	for i, n := range idx.DocNames {
		if n == name {
			return idx.Document(i)
		}
	}
	return Document{}, fmt.Errorf("%w: document %q", ErrNotFound, name)
}

// Term returns the documents containing term. The term is tried as given,
// then lower-cased, then normalised the way the builder indexes words.
func (idx *Index) Term(term string) ([]TermHit, error) {
	return idx.lookup(idx.Terms, "term", term)
}

// TitleTerm is Term for words occurring in page titles.
func (idx *Index) TitleTerm(term string) ([]TermHit, error) {
	return idx.lookup(idx.TitleTerms, "title term", term)
}

func (idx *Index) lookup(m map[string]Postings, what, term string) ([]TermHit, error) {
	candidates := []string{term, strings.ToLower(term), tokenizer.Normalize(term)}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		p, ok := m[c]
		if !ok {
			continue
		}
		hits := make([]TermHit, 0, len(p))
		for _, post := range p {
			d, err := idx.Document(post.Doc)
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", what, c, err)
			}
			hits = append(hits, TermHit{Document: d, Score: post.Score})
		}
		return hits, nil
	}
	return nil, fmt.Errorf("%w: %s %q", ErrNotFound, what, term)
}

// Object looks up an object by its full dotted name. Member names may
// contain dots, so every split point is tried, rightmost first.
func (idx *Index) Object(fullName string) (ObjectRef, error) {
	if o, ok := idx.member("", fullName); ok {
		return idx.resolve(o)
	}
	for i := len(fullName) - 1; i > 0; i-- {
		if fullName[i] != '.' {
			continue
		}
		if o, ok := idx.member(fullName[:i], fullName[i+1:]); ok {
			return idx.resolve(o)
		}
	}
	return ObjectRef{}, fmt.Errorf("%w: object %q", ErrNotFound, fullName)
}

func (idx *Index) member(ns, name string) (Object, bool) {
	for _, o := range idx.Objects[ns] {
		if o.Name == name {
			return o, true
		}
	}
	return Object{}, false
}

// ObjectsOfType returns the objects whose kind (e.g. "class") or
// domain:kind (e.g. "py:class") matches kind, ordered by full name.
func (idx *Index) ObjectsOfType(kind string) []ObjectRef {
	var out []ObjectRef
	for _, ns := range idx.Namespaces() {
		for _, o := range idx.Objects[ns] {
			t := idx.ObjNames[fmt.Sprint(o.TypeCode)]
			if kind != t.Kind && kind != t.Domain+":"+t.Kind {
				continue
			}
			if ref, err := idx.resolve(o); err == nil {
				out = append(out, ref)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// Namespaces returns the object namespaces in sorted order.
func (idx *Index) Namespaces() []string {
	out := make([]string, 0, len(idx.Objects))
	for ns := range idx.Objects {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) resolve(o Object) (ObjectRef, error) {
	d, err := idx.Document(o.Doc)
	if err != nil {
		return ObjectRef{}, err
	}
	t := idx.ObjNames[fmt.Sprint(o.TypeCode)]
	ref := ObjectRef{Object: o, FullName: o.FullName(), Type: t, Document: d}
	switch o.Anchor {
	case "":
		ref.AnchorID = ref.FullName
	case "-":
		ref.AnchorID = t.Kind + "-" + ref.FullName
	default:
		ref.AnchorID = o.Anchor
	}
	return ref, nil
}

// Stats computes summary counts.
func (idx *Index) Stats() Stats {
	s := Stats{
		Documents:  len(idx.DocNames),
		Terms:      len(idx.Terms),
		TitleTerms: len(idx.TitleTerms),
		Namespaces: len(idx.Objects),
		ByKind:     make(map[string]int),
	}
	for _, p := range idx.Terms {
		s.Postings += len(p)
	}
	for _, objs := range idx.Objects {
		s.Objects += len(objs)
		for _, o := range objs {
			s.ByKind[idx.ObjNames[fmt.Sprint(o.TypeCode)].Kind]++
		}
	}
	return s
}

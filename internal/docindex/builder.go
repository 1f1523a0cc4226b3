package docindex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/cryptomite-go/cryptomite/internal/tokenizer"
)

// domainNames gives the display prefix for object domains, so "py:class"
// is shown as "Python class".
var domainNames = map[string]string{
	"py":  "Python",
	"c":   "C",
	"cpp": "C++",
	"js":  "JavaScript",
	"rst": "reStructuredText",
	"std": "",
}

// Builder generates an index from documents and objects. It is not safe
// for concurrent use.
type Builder struct {
	docNames   []string
	fileNames  []string
	titles     []string
	docIDs     map[string]int
	terms      map[string]*roaring.Bitmap
	titleTerms map[string]*roaring.Bitmap
	objects    map[string][]Object
	typeCodes  map[string]int
	typeOrder  []string
	envVersion map[string]json.RawMessage
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		docIDs:     make(map[string]int),
		terms:      make(map[string]*roaring.Bitmap),
		titleTerms: make(map[string]*roaring.Bitmap),
		objects:    make(map[string][]Object),
		typeCodes:  make(map[string]int),
		envVersion: make(map[string]json.RawMessage),
	}
}

// AddDocument appends a document. Words of body are indexed as terms and
// words of title as title terms.
func (b *Builder) AddDocument(docname, filename, title, body string) error {
	if docname == "" {
		return fmt.Errorf("%w: empty docname", ErrInvalidIndex)
	}
	if _, dup := b.docIDs[docname]; dup {
		return fmt.Errorf("%w: duplicate docname %q", ErrInvalidIndex, docname)
	}
	id := len(b.docNames)
	b.docIDs[docname] = id
	b.docNames = append(b.docNames, docname)
	b.fileNames = append(b.fileNames, filename)
	b.titles = append(b.titles, title)

	for _, term := range tokenizer.Terms(body) {
		post(b.terms, term, id)
	}
	for _, term := range tokenizer.Terms(title) {
		post(b.titleTerms, term, id)
	}
	return nil
}

// AddObject records an API object documented on docname. kind is
// "domain:kind" (e.g. "py:method"); a bare kind is taken as a Python one.
// An anchor equal to the full name is stored as "".
func (b *Builder) AddObject(namespace, name, docname, kind, anchor string, priority int) error {
	id, ok := b.docIDs[docname]
	if !ok {
		return fmt.Errorf("%w: object %q on unknown document %q", ErrInvalidIndex, name, docname)
	}
	if name == "" {
		return fmt.Errorf("%w: empty object name", ErrInvalidIndex)
	}
	if priority < -1 || priority > 2 {
		return fmt.Errorf("%w: object %q priority %d", ErrInvalidIndex, name, priority)
	}
	if !strings.Contains(kind, ":") {
		kind = "py:" + kind
	}
	code, ok := b.typeCodes[kind]
	if !ok {
		code = len(b.typeOrder)
		b.typeCodes[kind] = code
		b.typeOrder = append(b.typeOrder, kind)
	}
	o := Object{Namespace: namespace, Name: name, Doc: id, TypeCode: code, Priority: priority, Anchor: anchor}
	switch anchor {
	case o.FullName():
		o.Anchor = ""
	case kind[strings.IndexByte(kind, ':')+1:] + "-" + o.FullName():
		o.Anchor = "-"
	}
	b.objects[namespace] = append(b.objects[namespace], o)
	return nil
}

// SetEnvVersion records the version of a generator extension.
func (b *Builder) SetEnvVersion(name string, version int) {
	b.envVersion[name] = json.RawMessage(strconv.Itoa(version))
}

// Build assembles and validates the index. The Builder may keep being used
// afterwards; the returned index shares no state with it.
func (b *Builder) Build() (*Index, error) {
	idx := &Index{
		DocNames:   append([]string{}, b.docNames...),
		FileNames:  append([]string{}, b.fileNames...),
		Titles:     append([]string{}, b.titles...),
		Objects:    make(map[string][]Object, len(b.objects)),
		ObjNames:   make(map[string]ObjName, len(b.typeOrder)),
		ObjTypes:   make(map[string]string, len(b.typeOrder)),
		Terms:      postings(b.terms),
		TitleTerms: postings(b.titleTerms),
		EnvVersion: make(map[string]json.RawMessage, len(b.envVersion)),
		Extra:      make(map[string]json.RawMessage),
	}
	for ns, objs := range b.objects {
		idx.Objects[ns] = append([]Object{}, objs...)
	}
	for code, kind := range b.typeOrder {
		domain, k, _ := strings.Cut(kind, ":")
		display := strings.TrimSpace(domainNames[domain] + " " + k)
		key := strconv.Itoa(code)
		idx.ObjNames[key] = ObjName{Domain: domain, Kind: k, Display: display}
		idx.ObjTypes[key] = kind
	}
	for k, v := range b.envVersion {
		idx.EnvVersion[k] = v
	}
	if err := Validate(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func post(m map[string]*roaring.Bitmap, term string, doc int) {
	bm, ok := m[term]
	if !ok {
		bm = roaring.New()
		m[term] = bm
	}
	bm.Add(uint32(doc))
}

func postings(m map[string]*roaring.Bitmap) map[string]Postings {
	out := make(map[string]Postings, len(m))
	for term, bm := range m {
		p := make(Postings, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			p = append(p, Posting{Doc: int(it.Next())})
		}
		out[term] = p
	}
	return out
}

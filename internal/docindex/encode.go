package docindex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode renders idx as a Search.setIndex(...) script. The embedded object
// is JSON with sorted keys, so equal indexes encode to equal bytes, and the
// output decodes back to an equal index.
func Encode(idx *Index) ([]byte, error) {
	body, err := marshal(idx, "")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(setIndexCall)+1)
	out = append(out, setIndexCall...)
	out = append(out, body...)
	out = append(out, ')')
	return out, nil
}

// EncodeJSON renders idx as indented JSON with sorted keys.
func EncodeJSON(idx *Index) ([]byte, error) {
	return marshal(idx, "  ")
}

func marshal(idx *Index, indent string) ([]byte, error) {
	doc := map[string]any{
		"docnames":   nonNil(idx.DocNames),
		"filenames":  nonNil(idx.FileNames),
		"titles":     nonNil(idx.Titles),
		"objects":    encodeObjects(idx.Objects),
		"objnames":   encodeObjNames(idx.ObjNames),
		"objtypes":   nonNilMap(idx.ObjTypes),
		"terms":      encodePostingsMap(idx.Terms),
		"titleterms": encodePostingsMap(idx.TitleTerms),
		"envversion": nonNilMap(idx.EnvVersion),
	}
	for k, v := range idx.Extra {
		if _, taken := doc[k]; taken {
			return nil, fmt.Errorf("extra key %q shadows an index member", k)
		}
		doc[k] = v
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding search index: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

func encodeObjects(objects map[string][]Object) map[string][][]any {
	out := make(map[string][][]any, len(objects))
	for ns, objs := range objects {
		list := make([][]any, 0, len(objs))
		for _, o := range objs {
			list = append(list, []any{o.Doc, o.TypeCode, o.Priority, o.Anchor, o.Name})
		}
		out[ns] = list
	}
	return out
}

func encodeObjNames(names map[string]ObjName) map[string][]string {
	out := make(map[string][]string, len(names))
	for code, n := range names {
		out[code] = []string{n.Domain, n.Kind, n.Display}
	}
	return out
}

func encodePostingsMap(m map[string]Postings) map[string]any {
	out := make(map[string]any, len(m))
	for term, p := range m {
		out[term] = encodePostings(p)
	}
	return out
}

// encodePostings uses the most compact form that decodes back to p: a bare
// number for a single unscored posting, otherwise a list.
func encodePostings(p Postings) any {
	scored := false
	for _, v := range p {
		scored = scored || v.Scored
	}
	if len(p) == 1 && !scored {
		return p[0].Doc
	}
	list := make([]any, 0, len(p))
	for _, v := range p {
		if v.Scored {
			list = append(list, []int{v.Doc, v.Score})
		} else {
			list = append(list, v.Doc)
		}
	}
	return list
}

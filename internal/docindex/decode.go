package docindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"
)

const setIndexCall = "Search.setIndex("

// Decode parses a search index. It accepts the Search.setIndex({...}) script,
// a bare JavaScript object literal with unquoted keys and single- or
// double-quoted strings, or strict JSON.
func Decode(data []byte) (*Index, error) {
	body, off := unwrap(data)
	js, err := toJSON(body)
	if err != nil {
		if se, ok := err.(*syntaxError); ok {
			return nil, fmt.Errorf("%w: %s at offset %d", ErrMalformedIndex, se.msg, off+se.off)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(js, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: index is null", ErrMalformedIndex)
	}
	idx, err := fromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	return idx, nil
}

// unwrap strips the Search.setIndex( ... ); wrapper and returns the object
// literal with its offset in data.
func unwrap(data []byte) ([]byte, int) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	start := len(data) - len(trimmed)
	if !bytes.HasPrefix(trimmed, []byte(setIndexCall)) {
		return data, 0
	}
	body := trimmed[len(setIndexCall):]
	body = bytes.TrimRight(body, " \t\r\n;")
	body = bytes.TrimSuffix(body, []byte(")"))
	return body, start + len(setIndexCall)
}

type syntaxError struct {
	msg string
	off int
}

func (e *syntaxError) Error() string { return fmt.Sprintf("%s at offset %d", e.msg, e.off) }

// toJSON rewrites a JavaScript object literal into JSON: identifier keys
// are quoted and single-quoted strings become double-quoted. Anything JSON
// does not allow otherwise is left for the JSON parser to reject.
func toJSON(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src) + len(src)/8)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			n, err := copyString(&out, src, i)
			if err != nil {
				return nil, err
			}
			i = n
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(src) && isNumberPart(src[j]) {
				j++
			}
			k := j
			for k < len(src) && isSpace(src[k]) {
				k++
			}
			if k < len(src) && src[k] == ':' {
				// numeric keys such as objnames codes
				out.WriteString(strconv.Quote(string(src[i:j])))
			} else {
				out.Write(src[i:j])
			}
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			k := j
			for k < len(src) && isSpace(src[k]) {
				k++
			}
			switch {
			case k < len(src) && src[k] == ':':
				out.WriteString(strconv.Quote(string(word)))
			case string(word) == "true" || string(word) == "false" || string(word) == "null":
				out.Write(word)
			default:
				return nil, &syntaxError{msg: fmt.Sprintf("unexpected identifier %q", word), off: i}
			}
			i = j
		case c == '/' && i+1 < len(src) && (src[i+1] == '/' || src[i+1] == '*'):
			n, err := skipComment(src, i)
			if err != nil {
				return nil, err
			}
			i = n
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.Bytes(), nil
}

// copyString converts the string literal starting at src[i] to a JSON
// string and returns the offset just past its closing quote.
func copyString(out *bytes.Buffer, src []byte, i int) (int, error) {
	quote := src[i]
	start := i
	var sb []byte
	i++
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			out.WriteString(strconv.Quote(string(sb)))
			return i + 1, nil
		case c == '\n':
			return 0, &syntaxError{msg: "newline in string", off: i}
		case c == '\\':
			if i+1 >= len(src) {
				return 0, &syntaxError{msg: "unterminated escape", off: i}
			}
			r, n, err := unescape(src, i)
			if err != nil {
				return 0, err
			}
			sb = utf8.AppendRune(sb, r)
			i = n
		default:
			sb = append(sb, c)
			i++
		}
	}
	return 0, &syntaxError{msg: "unterminated string", off: start}
}

// unescape decodes the escape sequence at src[i] (a backslash).
func unescape(src []byte, i int) (rune, int, error) {
	e := src[i+1]
	switch e {
	case 'n':
		return '\n', i + 2, nil
	case 't':
		return '\t', i + 2, nil
	case 'r':
		return '\r', i + 2, nil
	case 'b':
		return '\b', i + 2, nil
	case 'f':
		return '\f', i + 2, nil
	case 'v':
		return '\v', i + 2, nil
	case '0':
		return 0, i + 2, nil
	case 'x':
		return hexRune(src, i, 2)
	case 'u':
		if i+2 < len(src) && src[i+2] == '{' {
			end := bytes.IndexByte(src[i+3:], '}')
			if end < 0 {
				return 0, 0, &syntaxError{msg: "unterminated code point escape", off: i}
			}
			v, err := strconv.ParseUint(string(src[i+3:i+3+end]), 16, 32)
			if err != nil {
				return 0, 0, &syntaxError{msg: "bad code point escape", off: i}
			}
			return rune(v), i + 4 + end, nil
		}
		r, n, err := hexRune(src, i, 4)
		if err != nil {
			return 0, 0, err
		}
		// Surrogate pairs arrive as two \u escapes.
		if r >= 0xD800 && r < 0xDC00 && n+1 < len(src) && src[n] == '\\' && src[n+1] == 'u' {
			lo, m, err := hexRune(src, n, 4)
			if err == nil && lo >= 0xDC00 && lo < 0xE000 {
				return (r-0xD800)<<10 + (lo - 0xDC00) + 0x10000, m, nil
			}
		}
		return r, n, nil
	default:
		// Any other escaped character stands for itself.
		r, size := utf8.DecodeRune(src[i+1:])
		return r, i + 1 + size, nil
	}
}

func hexRune(src []byte, i, digits int) (rune, int, error) {
	if i+2+digits > len(src) {
		return 0, 0, &syntaxError{msg: "short hex escape", off: i}
	}
	v, err := strconv.ParseUint(string(src[i+2:i+2+digits]), 16, 32)
	if err != nil {
		return 0, 0, &syntaxError{msg: "bad hex escape", off: i}
	}
	return rune(v), i + 2 + digits, nil
}

func skipComment(src []byte, i int) (int, error) {
	if src[i+1] == '/' {
		end := bytes.IndexByte(src[i:], '\n')
		if end < 0 {
			return len(src), nil
		}
		return i + end, nil
	}
	end := bytes.Index(src[i+2:], []byte("*/"))
	if end < 0 {
		return 0, &syntaxError{msg: "unterminated comment", off: i}
	}
	return i + 2 + end + 2, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isNumberPart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// fromRaw interprets the top-level members of the index.
func fromRaw(raw map[string]json.RawMessage) (*Index, error) {
	idx := &Index{
		Objects:    make(map[string][]Object),
		ObjNames:   make(map[string]ObjName),
		ObjTypes:   make(map[string]string),
		Terms:      make(map[string]Postings),
		TitleTerms: make(map[string]Postings),
		EnvVersion: make(map[string]json.RawMessage),
		Extra:      make(map[string]json.RawMessage),
		DocNames:   []string{},
		FileNames:  []string{},
		Titles:     []string{},
	}
	for key, v := range raw {
		var err error
		switch key {
		case "docnames":
			err = json.Unmarshal(v, &idx.DocNames)
		case "filenames":
			err = json.Unmarshal(v, &idx.FileNames)
		case "titles":
			err = json.Unmarshal(v, &idx.Titles)
		case "objtypes":
			err = json.Unmarshal(v, &idx.ObjTypes)
		case "objnames":
			err = decodeObjNames(v, idx.ObjNames)
		case "objects":
			err = decodeObjects(v, idx.Objects)
		case "terms":
			err = decodePostingsMap(v, idx.Terms)
		case "titleterms":
			err = decodePostingsMap(v, idx.TitleTerms)
		case "envversion":
			err = decodeRawMap(v, idx.EnvVersion)
		default:
			idx.Extra[key], err = compact(v)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return idx, nil
}

func compact(v json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRawMap(v json.RawMessage, dst map[string]json.RawMessage) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return err
	}
	for k, raw := range m {
		c, err := compact(raw)
		if err != nil {
			return err
		}
		dst[k] = c
	}
	return nil
}

func decodeObjNames(v json.RawMessage, dst map[string]ObjName) error {
	var m map[string][]string
	if err := json.Unmarshal(v, &m); err != nil {
		return err
	}
	for code, parts := range m {
		if len(parts) != 3 {
			return fmt.Errorf("type %s: want [domain, kind, display], got %d elements", code, len(parts))
		}
		dst[code] = ObjName{Domain: parts[0], Kind: parts[1], Display: parts[2]}
	}
	return nil
}

// decodeObjects accepts both object layouts: namespace -> list of
// [doc, type, priority, anchor, name], and the older namespace -> name ->
// [doc, type, priority, anchor].
func decodeObjects(v json.RawMessage, dst map[string][]Object) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return err
	}
	for ns, raw := range m {
		var list [][]json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			objs := make([]Object, 0, len(list))
			for i, tuple := range list {
				if len(tuple) != 5 {
					return fmt.Errorf("%q[%d]: want 5 elements, got %d", ns, i, len(tuple))
				}
				o, err := objectFromTuple(ns, tuple)
				if err != nil {
					return fmt.Errorf("%q[%d]: %w", ns, i, err)
				}
				if err := json.Unmarshal(tuple[4], &o.Name); err != nil {
					return fmt.Errorf("%q[%d] name: %w", ns, i, err)
				}
				objs = append(objs, o)
			}
			dst[ns] = objs
			continue
		}
		var members map[string][]json.RawMessage
		if err := json.Unmarshal(raw, &members); err != nil {
			return fmt.Errorf("%q: neither a list of tuples nor a member map", ns)
		}
		names := make([]string, 0, len(members))
		for name := range members {
			names = append(names, name)
		}
		sort.Strings(names)
		objs := make([]Object, 0, len(names))
		for _, name := range names {
			tuple := members[name]
			if len(tuple) != 4 {
				return fmt.Errorf("%q.%s: want 4 elements, got %d", ns, name, len(tuple))
			}
			o, err := objectFromTuple(ns, tuple)
			if err != nil {
				return fmt.Errorf("%q.%s: %w", ns, name, err)
			}
			o.Name = name
			objs = append(objs, o)
		}
		dst[ns] = objs
	}
	return nil
}

func objectFromTuple(ns string, t []json.RawMessage) (Object, error) {
	o := Object{Namespace: ns}
	if err := json.Unmarshal(t[0], &o.Doc); err != nil {
		return o, fmt.Errorf("document: %w", err)
	}
	if err := json.Unmarshal(t[1], &o.TypeCode); err != nil {
		return o, fmt.Errorf("type: %w", err)
	}
	if err := json.Unmarshal(t[2], &o.Priority); err != nil {
		return o, fmt.Errorf("priority: %w", err)
	}
	if err := json.Unmarshal(t[3], &o.Anchor); err != nil {
		return o, fmt.Errorf("anchor: %w", err)
	}
	return o, nil
}

func decodePostingsMap(v json.RawMessage, dst map[string]Postings) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return err
	}
	for term, raw := range m {
		p, err := decodePostings(raw)
		if err != nil {
			return fmt.Errorf("%q: %w", term, err)
		}
		dst[term] = p
	}
	return nil
}

// decodePostings accepts a document number, a list of document numbers, or
// a list of [document, score] pairs.
func decodePostings(raw json.RawMessage) (Postings, error) {
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return Postings{{Doc: single}}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("want a document number or a list, got %s", raw)
	}
	out := make(Postings, 0, len(list))
	for _, el := range list {
		var doc int
		if err := json.Unmarshal(el, &doc); err == nil {
			out = append(out, Posting{Doc: doc})
			continue
		}
		var pair []int
		if err := json.Unmarshal(el, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("want a document number or [document, score], got %s", el)
		}
		out = append(out, Posting{Doc: pair[0], Score: pair[1], Scored: true})
	}
	return out, nil
}

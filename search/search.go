// Package search translates a small filter-expression language into the
// store's full-text query protocol and evaluates it for backends that have
// no native search engine.
//
// Expressions follow the RediSearch query dialect restricted to what the
// services need:
//
//	@email:{alice\@example\.com}      tag equality (case-insensitive)
//	@lifestyle:{keto|vegan}          tag alternatives
//	@username:alice                  text word match (case-insensitive)
//	@email:{a\@b\.c} @username:bob   conjunction
//	*                                match everything
package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/stevemurr/grocery-chat-server/keys"
)

// MaxResults caps the number of documents a search returns.
const MaxResults = 1000

// ErrSyntax is returned for malformed filter expressions.
var ErrSyntax = errors.New("search: syntax error")

// FieldType is the index type of a searchable field.
type FieldType string

const (
	TypeTag  FieldType = "TAG"
	TypeText FieldType = "TEXT"
)

// Field is one searchable hash field.
type Field struct {
	Name string
	Type FieldType
}

// Index describes a search index over every hash whose key starts with Prefix.
type Index struct {
	Name   string
	Prefix string
	Fields []Field
}

// NewIndex returns the index over records of collection, named
// "<collection>:idx".
func NewIndex(collection string, fields ...Field) Index {
	return Index{
		Name:   keys.Build(collection, "idx"),
		Prefix: keys.Prefix(collection),
		Fields: fields,
	}
}

// Schema returns the FT.CREATE SCHEMA arguments for the index.
func (ix Index) Schema() []any {
	args := make([]any, 0, len(ix.Fields)*2)
	for _, f := range ix.Fields {
		args = append(args, f.Name, string(f.Type))
	}
	return args
}

// Escape backslash-escapes every rune that is not a letter, digit or
// underscore, which is what the tag and text tokenizers require.
func Escape(value string) string {
	var b strings.Builder
	for _, r := range value {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tag builds a tag clause matching any of values.
func Tag(field string, values ...string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = Escape(v)
	}
	return "@" + field + ":{" + strings.Join(escaped, "|") + "}"
}

// Text builds a text clause matching a single word.
func Text(field, word string) string {
	return "@" + field + ":" + Escape(word)
}

// And joins clauses into a conjunction.
func And(clauses ...string) string {
	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " ")
}

// Clause is one parsed "@field:..." term.
type Clause struct {
	Field  string
	Tag    bool
	Values []string
}

// Query is a parsed conjunction of clauses. The empty query matches all.
type Query []Clause

// Parse parses a filter expression.
func Parse(expr string) (Query, error) {
	p := &parser{src: []rune(strings.TrimSpace(expr))}
	if len(p.src) == 0 || string(p.src) == "*" {
		return Query{}, nil
	}
	var q Query
	for {
		p.skipSpace()
		if p.done() {
			return q, nil
		}
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		q = append(q, c)
	}
}

// Match reports whether a hash satisfies every clause.
func (q Query) Match(fields map[string]string) bool {
	for _, c := range q {
		v, ok := fields[c.Field]
		if !ok || !c.match(v) {
			return false
		}
	}
	return true
}

func (c Clause) match(stored string) bool {
	if c.Tag {
		for _, tag := range strings.Split(stored, ",") {
			tag = strings.TrimSpace(tag)
			for _, want := range c.Values {
				if strings.EqualFold(tag, want) {
					return true
				}
			}
		}
		return false
	}
	words := strings.FieldsFunc(stored, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		for _, want := range c.Values {
			if strings.EqualFold(w, want) {
				return true
			}
		}
	}
	return false
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.done() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) clause() (Clause, error) {
	if p.src[p.pos] != '@' {
		return Clause{}, p.errorf("expected '@'")
	}
	p.pos++
	start := p.pos
	for !p.done() && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	field := string(p.src[start:p.pos])
	if field == "" {
		return Clause{}, p.errorf("missing field name")
	}
	if p.done() || p.src[p.pos] != ':' {
		return Clause{}, p.errorf("expected ':' after field %q", field)
	}
	p.pos++
	if !p.done() && p.src[p.pos] == '{' {
		p.pos++
		values, err := p.tagValues()
		if err != nil {
			return Clause{}, err
		}
		return Clause{Field: field, Tag: true, Values: values}, nil
	}
	word := p.word()
	if word == "" {
		return Clause{}, p.errorf("empty value for field %q", field)
	}
	return Clause{Field: field, Values: []string{word}}, nil
}

func (p *parser) tagValues() ([]string, error) {
	var values []string
	var cur strings.Builder
	for !p.done() {
		r := p.src[p.pos]
		p.pos++
		switch r {
		case '\\':
			if p.done() {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteRune(p.src[p.pos])
			p.pos++
		case '|':
			values = append(values, strings.TrimSpace(cur.String()))
			cur.Reset()
		case '}':
			values = append(values, strings.TrimSpace(cur.String()))
			for _, v := range values {
				if v == "" {
					return nil, p.errorf("empty tag value")
				}
			}
			return values, nil
		default:
			cur.WriteRune(r)
		}
	}
	return nil, p.errorf("unterminated tag clause")
}

func (p *parser) word() string {
	var cur strings.Builder
	for !p.done() {
		r := p.src[p.pos]
		if unicode.IsSpace(r) {
			break
		}
		p.pos++
		if r == '\\' && !p.done() {
			r = p.src[p.pos]
			p.pos++
		}
		cur.WriteRune(r)
	}
	return cur.String()
}

// ParseReply decodes a RESP2 FT.SEARCH reply of the form
// [total, key1, [field, value, ...], key2, [...], ...].
func ParseReply(reply any) ([]map[string]string, error) {
	rows, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("search: unexpected reply type %T", reply)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if n, ok := rows[0].(int64); ok && n == 0 {
		return nil, nil
	}
	var docs []map[string]string
	for i := 2; i < len(rows); i += 2 {
		pairs, ok := rows[i].([]any)
		if !ok {
			return nil, fmt.Errorf("search: unexpected document type %T", rows[i])
		}
		doc := make(map[string]string, len(pairs)/2)
		for j := 0; j+1 < len(pairs); j += 2 {
			doc[toString(pairs[j])] = toString(pairs[j+1])
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

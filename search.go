package ims

import (
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenization selects which tokens are indexed for a word.
type tokenization int

const (
	// exact indexes the word itself.
	exact tokenization = iota
	// forward indexes every prefix of the word.
	forward
	// full indexes every substring of the word.
	full
)

// searchField is one indexed field: token -> incident numbers.
type searchField struct {
	tokenize tokenization
	tokens   map[string]map[int]struct{}
}

// searchIndex is a per-event multi-field index over incidents.
// It is built once and never updated; a changed collection gets a new index.
type searchIndex struct {
	fields []*searchField
}

type fieldValues func(incident *Incident) []string

var indexedFields = []struct {
	tokenize tokenization
	values   fieldValues
}{
	{exact, func(i *Incident) []string { return []string{strconv.Itoa(i.Number)} }},
	{forward, func(i *Incident) []string { return []string{i.Created.Format(time.RFC3339)} }},
	{exact, func(i *Incident) []string { return []string{string(i.State)} }},
	{exact, func(i *Incident) []string { return []string{strconv.Itoa(i.Priority)} }},
	{full, func(i *Incident) []string {
		if i.Summary == nil {
			return nil
		}
		return []string{*i.Summary}
	}},
	{full, func(i *Incident) []string {
		if i.Location == nil {
			return nil
		}
		return []string{i.Location.Name}
	}},
	{full, func(i *Incident) []string {
		if i.Location == nil {
			return nil
		}
		return []string{i.Location.Description}
	}},
	{forward, func(i *Incident) []string { return i.RangerHandles }},
	{forward, func(i *Incident) []string { return i.IncidentTypes }},
}

func newSearchIndex(incidents []Incident) *searchIndex {
	index := &searchIndex{}
	for _, f := range indexedFields {
		field := &searchField{tokenize: f.tokenize, tokens: make(map[string]map[int]struct{})}
		for i := range incidents {
			incident := &incidents[i]
			for _, value := range f.values(incident) {
				for _, word := range words(value) {
					field.add(word, incident.Number)
				}
			}
		}
		index.fields = append(index.fields, field)
	}
	return index
}

func (f *searchField) add(word string, number int) {
	for _, token := range tokens(word, f.tokenize) {
		numbers, ok := f.tokens[token]
		if !ok {
			numbers = make(map[int]struct{})
			f.tokens[token] = numbers
		}
		numbers[number] = struct{}{}
	}
}

// match returns the incident numbers whose field contains every query word.
func (f *searchField) match(query []string) map[int]struct{} {
	var matched map[int]struct{}
	for _, word := range query {
		numbers := f.tokens[word]
		if len(numbers) == 0 {
			return nil
		}
		if matched == nil {
			matched = make(map[int]struct{}, len(numbers))
			for number := range numbers {
				matched[number] = struct{}{}
			}
			continue
		}
		for number := range matched {
			if _, ok := numbers[number]; !ok {
				delete(matched, number)
			}
		}
	}
	return matched
}

// search returns the numbers of incidents matching query in any field,
// in ascending order.
func (x *searchIndex) search(query string) []int {
	queryWords := words(query)
	if len(queryWords) == 0 {
		return nil
	}

	union := make(map[int]struct{})
	for _, field := range x.fields {
		for number := range field.match(queryWords) {
			union[number] = struct{}{}
		}
	}

	numbers := make([]int, 0, len(union))
	for number := range union {
		numbers = append(numbers, number)
	}
	slices.Sort(numbers)
	return numbers
}

// tokens expands a normalized word according to t.
func tokens(word string, t tokenization) []string {
	r := []rune(word)
	switch t {
	case forward:
		out := make([]string, 0, len(r))
		for end := 1; end <= len(r); end++ {
			out = append(out, string(r[:end]))
		}
		return out
	case full:
		out := make([]string, 0, len(r)*(len(r)+1)/2)
		for start := 0; start < len(r); start++ {
			for end := start + 1; end <= len(r); end++ {
				out = append(out, string(r[start:end]))
			}
		}
		return out
	default:
		return []string{word}
	}
}

// words splits s into normalized words: case folded, without
// diacritics, broken at anything that is not a letter or digit.
func words(s string) []string {
	normalized, _, err := transform.String(normalizer(), s)
	if err != nil {
		normalized = s
	}
	normalized = cases.Fold().String(normalized)

	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// normalizer strips combining marks. Transformers are stateful, so
// each use gets its own chain.
func normalizer() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

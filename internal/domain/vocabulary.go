package domain

import (
	"fmt"
	"sort"
	"strings"
)

var (
	defaultPests = []string{
		"rice bug",
		"stem borer",
		"leaf folder",
		"rice leaf roller",
		"rice leaf caterpillar",
		"paddy stem maggot",
		"asiatic rice borer",
		"yellow rice borer",
		"rice gall midge",
		"brown plant hopper",
		"rice stem fly",
		"rice water weevil",
		"rice leaf hopper",
		"rice shell pest",
		"thrips",
	}

	defaultDiseases = []string{
		"bacterial blight",
		"blast",
		"brown spot",
		"tungro",
	}
)

// Vocabulary is the closed set of recognized names per kind.
// The zero value recognizes nothing; use DefaultVocabulary.
type Vocabulary struct {
	names map[Kind]map[string]struct{}
}

// DefaultVocabulary returns the names the upstream pest and disease
// classifiers can emit, optionally extended with extra names per kind.
func DefaultVocabulary(extraPests, extraDiseases []string) Vocabulary {
	v := Vocabulary{names: map[Kind]map[string]struct{}{
		KindPest:    {},
		KindDisease: {},
	}}
	v.add(KindPest, defaultPests...)
	v.add(KindPest, extraPests...)
	v.add(KindDisease, defaultDiseases...)
	v.add(KindDisease, extraDiseases...)
	return v
}

func (v Vocabulary) add(kind Kind, names ...string) {
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			v.names[kind][n] = struct{}{}
		}
	}
}

// Validate normalizes name and checks it against the vocabulary for kind.
func (v Vocabulary) Validate(kind Kind, name string) (string, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", fmt.Errorf("%w: %s name is required", ErrInvalidInput, kind)
	}
	set, ok := v.names[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if _, ok := set[normalized]; !ok {
		return "", fmt.Errorf("%w: %q is not a recognized %s", ErrInvalidInput, name, kind)
	}
	return normalized, nil
}

// Names returns the sorted vocabulary for kind.
func (v Vocabulary) Names(kind Kind) []string {
	out := make([]string, 0, len(v.names[kind]))
	for n := range v.names[kind] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NormalizeName trims, lower-cases and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

package service

import (
	"context"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"market_call/internal/domain"
	"market_call/pkg/errors"
)

// KeywordProvider is the built-in reference text provider: an Aho-Corasick
// automaton over a normalized prohibited-word list. It advertises the Text
// capability only.
type KeywordProvider struct {
	name     string
	matcher  *goahocorasick.Machine
	action   domain.ModerationAction
	severity float64
}

func NewKeywordProvider(name string, words []string, action domain.ModerationAction, severity float64) (*KeywordProvider, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &KeywordProvider{
		name:     name,
		matcher:  m,
		action:   action,
		severity: severity,
	}, nil
}

func (p *KeywordProvider) Name() string { return p.name }

func (p *KeywordProvider) Capabilities() domain.Capability { return domain.CapabilityText }

func (p *KeywordProvider) CheckText(ctx context.Context, text string) (domain.ModerationResult, error) {
	normalized := normalizeRunes([]rune(text))
	if len(normalized) == 0 {
		return domain.ModerationResult{}, nil
	}

	spans := p.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return domain.ModerationResult{}, nil
	}

	categories := make(map[string]float64)
	matched := make([]string, 0, len(spans))
	for _, span := range spans {
		word := string(span.Word)
		if _, seen := categories[word]; !seen {
			matched = append(matched, word)
		}
		categories[word] = 1.0
	}

	return domain.ModerationResult{
		Flagged:           true,
		Categories:        categories,
		Severity:          p.severity,
		ActionRecommended: p.action,
		Reason:            "prohibited keyword: " + strings.Join(matched, ", "),
	}, nil
}

func (p *KeywordProvider) CheckAudio(ctx context.Context, data []byte) (domain.ModerationResult, error) {
	return domain.ModerationResult{}, errors.ErrUnsupportedCheck
}

func (p *KeywordProvider) CheckVideo(ctx context.Context, data []byte) (domain.ModerationResult, error) {
	return domain.ModerationResult{}, errors.ErrUnsupportedCheck
}

// normalizeRunes lowercases, maps common leet substitutions back and strips
// punctuation/whitespace so obfuscated spellings still match.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if unicode.IsPunct(clean) || unicode.IsSpace(clean) || unicode.IsSymbol(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

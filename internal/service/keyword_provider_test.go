package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"market_call/internal/domain"
	"market_call/pkg/errors"
)

func TestKeywordProvider_FlagsProhibitedWords(t *testing.T) {
	req := require.New(t)
	provider, err := NewKeywordProvider("keywords", []string{"scam", "fraud"}, domain.ActionWarning, 0.5)
	req.NoError(err)

	result, err := provider.CheckText(context.Background(), "this deal is a total scam, run")
	req.NoError(err)
	req.True(result.Flagged)
	req.Equal(domain.ActionWarning, result.ActionRecommended)
	req.Equal(0.5, result.Severity)
	req.Contains(result.Reason, "scam")
	req.Equal(1.0, result.Categories["scam"])

	result, err = provider.CheckText(context.Background(), "perfectly fine message")
	req.NoError(err)
	req.False(result.Flagged)
}

func TestKeywordProvider_NormalizesObfuscation(t *testing.T) {
	req := require.New(t)
	provider, err := NewKeywordProvider("keywords", []string{"badword"}, domain.ActionMuteAudio, 0.8)
	req.NoError(err)

	// Leet substitutions, case and separators are stripped before matching
	for _, text := range []string{
		"BADWORD",
		"b4dw0rd",
		"b.a.d.w.o.r.d",
		"B@dw0rD!!!",
		"say b a d w o r d twice",
	} {
		result, err := provider.CheckText(context.Background(), text)
		req.NoError(err)
		req.True(result.Flagged, "text: %q", text)
		req.Equal(domain.ActionMuteAudio, result.ActionRecommended)
	}
}

func TestKeywordProvider_EmptyInput(t *testing.T) {
	req := require.New(t)
	provider, err := NewKeywordProvider("keywords", []string{"scam"}, domain.ActionWarning, 0.5)
	req.NoError(err)

	result, err := provider.CheckText(context.Background(), "")
	req.NoError(err)
	req.False(result.Flagged)

	result, err = provider.CheckText(context.Background(), "!!! ... ???")
	req.NoError(err)
	req.False(result.Flagged)
}

func TestKeywordProvider_TextCapabilityOnly(t *testing.T) {
	req := require.New(t)
	provider, err := NewKeywordProvider("keywords", []string{"scam"}, domain.ActionWarning, 0.5)
	req.NoError(err)

	req.True(provider.Capabilities().Has(domain.CapabilityText))
	req.False(provider.Capabilities().Has(domain.CapabilityAudio))
	req.False(provider.Capabilities().Has(domain.CapabilityVideo))

	_, err = provider.CheckAudio(context.Background(), []byte("pcm"))
	req.ErrorIs(err, errors.ErrUnsupportedCheck)
	_, err = provider.CheckVideo(context.Background(), []byte("frame"))
	req.ErrorIs(err, errors.ErrUnsupportedCheck)
}

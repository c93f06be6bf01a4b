// Package signature categorizes failure text into coarse failure signatures.
package signature

import (
	"regexp"

	"github.com/boyarskiy/runledger/internal/model"
)

// rules maps failure signatures to their detection patterns.
// Rules are checked in order; first match wins.
var rules = []struct {
	signature model.FailureSignature
	patterns  []*regexp.Regexp
}{
	{
		signature: model.SignatureTimeout,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)timeout`),
			regexp.MustCompile(`(?i)timed?\s*out`),
			regexp.MustCompile(`(?i)exceeded\s*time`),
		},
	},
	{
		signature: model.SignatureSelector,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)selector`),
			regexp.MustCompile(`(?i)element\s*not\s*found`),
			regexp.MustCompile(`(?i)cy\.get`),
			regexp.MustCompile(`(?i)locator\.`),
		},
	},
	{
		signature: model.SignatureNetwork,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)network`),
			regexp.MustCompile(`(?i)ECONNREFUSED|ECONNRESET`),
			regexp.MustCompile(`(?i)fetch\s*failed`),
			regexp.MustCompile(`(?i)socket\s*hang\s*up`),
		},
	},
	{
		signature: model.SignatureDOMDetach,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)detached`),
			regexp.MustCompile(`(?i)stale\s*element`),
		},
	},
	{
		signature: model.SignatureVisualDiff,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)mis-?match`),
			regexp.MustCompile(`(?i)image\s*diff`),
		},
	},
	{
		signature: model.SignatureThreshold,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)threshold`),
		},
	},
	{
		signature: model.SignatureAssertion,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bexpect`),
			regexp.MustCompile(`(?i)\bassert`),
			regexp.MustCompile(`(?i)\btoBe\b`),
			regexp.MustCompile(`(?i)\btoEqual\b`),
		},
	},
}

// Detect analyzes failure text and returns the first matching signature,
// or SignatureUnknown when nothing matches.
func Detect(text string) model.FailureSignature {
	if text == "" {
		return model.SignatureUnknown
	}

	for _, rule := range rules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(text) {
				return rule.signature
			}
		}
	}

	return model.SignatureUnknown
}

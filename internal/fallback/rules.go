// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fallback

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Canned replies.
const (
	PricingReply = "Our pricing is tiered based on usage. We offer a free tier for hobbyists, a Pro tier at $29/month for professionals, and Enterprise plans with custom pricing for large-scale deployments."

	ModelsReply = "MASH offers both Large Language Models (LLMs) for cloud deployment and Small Language Models (SLMs) optimized for edge devices. Our models range from 1B to 70B parameters, with specialized versions for code, vision, and multilingual support."

	ContactReply = "You can reach our support team at support@mash-ai.io or through the contact form on our website. For enterprise inquiries, please email enterprise@mash-ai.io."

	GreetingReply = "Hey there, netrunner! Welcome to MASH. How can I assist with your AI needs today?"

	DefaultReply = "Thanks for your message. MASH specializes in cutting-edge AI models for both cloud and edge deployment. Our cyberpunk-inspired platform offers state-of-the-art language models with industry-leading performance. How else can I help you explore our AI solutions?"
)

// DefaultRuleName is reported when no rule matched.
const DefaultRuleName = "default"

// Rule maps a set of keywords to a reply.
type Rule struct {
	Name     string   `toml:"name" json:"name" yaml:"name"`
	Keywords []string `toml:"keywords" json:"keywords" yaml:"keywords"`
	Reply    string   `toml:"reply" json:"reply" yaml:"reply"`
}

// DefaultRules returns the built-in rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "pricing", Keywords: []string{"pricing", "price", "prices", "cost", "costs"}, Reply: PricingReply},
		{Name: "models", Keywords: []string{"model", "models", "llm", "llms", "slm", "slms"}, Reply: ModelsReply},
		{Name: "contact", Keywords: []string{"contact", "support"}, Reply: ContactReply},
		{Name: "greeting", Keywords: []string{"hello", "hi", "hey"}, Reply: GreetingReply},
	}
}

// Router picks the reply for a user message.
type Router struct {
	rules    []compiledRule
	fallback string
}

type compiledRule struct {
	name     string
	keywords map[string]struct{}
	reply    string
}

// NewRouter compiles rules. An empty defaultReply uses DefaultReply.
func NewRouter(rules []Rule, defaultReply string) *Router {
	if defaultReply == "" {
		defaultReply = DefaultReply
	}
	fold := cases.Fold()

	r := &Router{fallback: defaultReply}
	for _, rule := range rules {
		c := compiledRule{
			name:     rule.Name,
			keywords: make(map[string]struct{}, len(rule.Keywords)),
			reply:    rule.Reply,
		}
		for _, kw := range rule.Keywords {
			c.keywords[fold.String(strings.TrimSpace(kw))] = struct{}{}
		}
		r.rules = append(r.rules, c)
	}
	return r
}

// Route returns the name and reply of the first rule with a keyword that
// appears as a whole word in text, or the default.
func (r *Router) Route(text string) (name, reply string) {
	ws := words(text)
	for _, rule := range r.rules {
		for _, w := range ws {
			if _, ok := rule.keywords[w]; ok {
				return rule.name, rule.reply
			}
		}
	}
	return DefaultRuleName, r.fallback
}

// words splits text on anything that is not a letter or digit, case-folded.
// A fresh Caser is used per call; Casers are not safe for concurrent use.
func words(text string) []string {
	folded := cases.Fold().String(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

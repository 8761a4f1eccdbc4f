// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package sanitize scrubs inbound message content before it enters the
// relay path. Everything a client sends is treated as hostile HTML;
// what survives sanitization is safe to deliver to partners and
// observers verbatim and to persist as-is.
//
// Two policies cover the message kinds: a conservative user-content
// policy for plain chat text, and a wider policy for rendered notebook
// cells and flowcharts, which arrive as editor markup and need their
// structural attributes (classes, roles, CodeMirror annotations) to
// render on the receiving side.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/pairchat/pairchat/transcript"
)

var (
	textPolicy     = bluemonday.UGCPolicy()
	cellPolicy     = newCellPolicy()
	activityPolicy = bluemonday.StrictPolicy()
)

// newCellPolicy builds the policy for rendered notebook cell markup.
// The attribute list matches what the notebook editor emits for a
// rendered code cell with its prompt and output areas.
func newCellPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("br", "code")
	policy.AllowAttrs("class", "tabindex", "title", "style", "cm-not-content", "role", "draggable").OnElements("div")
	policy.AllowAttrs("class").OnElements("i")
	policy.AllowAttrs("role", "class").OnElements("span")
	policy.AllowAttrs("type", "checked", "input_area", "aria-label").OnElements("input")
	policy.AllowAttrs("style", "tabindex", "wrap").OnElements("textarea")
	policy.AllowAttrs("class", "role").OnElements("pre")
	return policy
}

// Clean sanitizes content according to its message kind. Unknown kinds
// fall through to the strictest policy.
func Clean(kind transcript.MessageKind, content string) string {
	switch kind {
	case transcript.KindText:
		return textPolicy.Sanitize(content)
	case transcript.KindCell, transcript.KindFlowchart:
		return cellPolicy.Sanitize(content)
	default:
		return activityPolicy.Sanitize(content)
	}
}

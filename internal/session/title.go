// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/threadchat/internal/model"
)

const (
	// titleWords is how many words of the first user message form a title.
	titleWords = 5

	// titleMaxLen is the longest derived title, in characters.
	titleMaxLen = 30

	// titleCutLen is where an over-long title is cut before the ellipsis.
	titleCutLen = 27
)

// DeriveTitle builds a thread title from the first user message: its first
// five space-separated words, cut to 27 characters plus "..." when longer
// than 30. Returns "" when there is no user message to use.
func DeriveTitle(messages []model.Message) string {
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			continue
		}
		return TitleFromText(msg.Content)
	}
	return ""
}

// TitleFromText applies the title rule to one message body.
func TitleFromText(content string) string {
	// NFC keeps a base letter and its combining mark as one character
	content = norm.NFC.String(content)

	words := strings.Split(content, " ")
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	title := strings.TrimSpace(strings.Join(words, " "))

	if utf8.RuneCountInString(title) > titleMaxLen {
		runes := []rune(title)
		title = string(runes[:titleCutLen]) + "..."
	}
	return title
}

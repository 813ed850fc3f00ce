// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a model offered for local installation.
type ModelInfo struct {
	// Name is the Ollama model tag used in API calls (e.g. "deepseek-r1:8b")
	Name string `json:"name"`

	// Family is the tag without its size suffix
	Family string `json:"family"`

	// Description is a brief explanation shown in suggestions
	Description string `json:"description,omitempty"`

	// Size is the approximate download size, human readable
	Size string `json:"size,omitempty"`

	// Reasoning marks models that emit <think> sections
	Reasoning bool `json:"reasoning,omitempty"`
}

// =============================================================================
// CATALOGUE
// =============================================================================

// DefaultModel is selected when nothing else is configured.
const DefaultModel = "deepseek-r1:1.5b"

// Models is the list of reasoning models offered in the model picker,
// smallest first.
var Models = []ModelInfo{
	{Name: "deepseek-r1:1.5b", Family: "deepseek-r1", Size: "1.1 GB", Reasoning: true},
	{Name: "deepseek-r1:8b", Family: "deepseek-r1", Size: "4.9 GB", Reasoning: true},
	{Name: "deepseek-r1:14b", Family: "deepseek-r1", Size: "9.0 GB", Reasoning: true},
	{Name: "deepseek-r1:32b", Family: "deepseek-r1", Size: "20 GB", Reasoning: true},
	{Name: "deepseek-r1:70b", Family: "deepseek-r1", Size: "43 GB", Reasoning: true},
}

// SmallModels are lighter alternatives suggested when a large install fails.
var SmallModels = []ModelInfo{
	{
		Name:        "tinyllama:1.1b",
		Family:      "tinyllama",
		Description: "Tiny LLaMA model, very fast and lightweight",
		Size:        "1.1 GB",
	},
	{
		Name:        "phi:mini",
		Family:      "phi",
		Description: "Small but powerful model from Microsoft",
		Size:        "1.6 GB",
	},
	{
		Name:        "gemma:2b",
		Family:      "gemma",
		Description: "Google's lightweight model for everyday tasks",
		Size:        "1.8 GB",
	},
	{
		Name:        "mistral:7b-instruct-v0.2-q4_0",
		Family:      "mistral",
		Description: "Quantized Mistral model with good performance",
		Size:        "4.1 GB",
	},
	{
		Name:        "nous-hermes2:yi-1.5-9b-q4_0",
		Family:      "nous-hermes2",
		Description: "Fast instruction-tuned model with good performance",
		Size:        "5.0 GB",
	},
}

// =============================================================================
// MODEL LOOKUP FUNCTIONS
// =============================================================================

// GetModelInfo looks up a model by its full tag, searching both lists.
// Tags are matched case-insensitively.
func GetModelInfo(name string) (ModelInfo, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range Models {
		if m.Name == name {
			return m, true
		}
	}
	for _, m := range SmallModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelNames returns the tags of the reasoning models in catalogue order.
func ModelNames() []string {
	names := make([]string, len(Models))
	for i, m := range Models {
		names[i] = m.Name
	}
	return names
}

// SmallModelNames returns the sorted tags of the small models.
func SmallModelNames() []string {
	names := make([]string, len(SmallModels))
	for i, m := range SmallModels {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}

// Family returns the part of a model tag before the colon.
func Family(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

// IsReasoningModel reports whether the model is expected to emit thinking
// sections. Unknown tags are judged by family.
func IsReasoningModel(name string) bool {
	if info, ok := GetModelInfo(name); ok {
		return info.Reasoning
	}
	return Family(strings.ToLower(name)) == "deepseek-r1"
}

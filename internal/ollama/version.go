// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// familyRequirements lists the minimum server version per model family.
var familyRequirements = map[string]string{
	"deepseek-r1": ">= 0.5.7",
}

// RequiredVersion returns the version constraint a model needs, or "" when
// any server version works.
func RequiredVersion(modelName string) string {
	family, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(modelName)), ":")
	return familyRequirements[family]
}

// CheckVersion reports whether a server at version can run modelName.
// Unparseable versions (development builds) are accepted.
func CheckVersion(version, modelName string) (bool, error) {
	req := RequiredVersion(modelName)
	if req == "" {
		return true, nil
	}

	constraint, err := semver.NewConstraint(req)
	if err != nil {
		return false, fmt.Errorf("bad constraint %q: %w", req, err)
	}
	v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return true, nil
	}
	return constraint.Check(v), nil
}

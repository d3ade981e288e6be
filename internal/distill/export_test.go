// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package distill

// ParseFacts exposes parseFacts for white-box testing.
var ParseFacts = func(raw string) ([]Fact, error) {
	return parseFacts(raw)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import "io"

// WriteSSEFrame exposes writeSSEFrame for direct unit testing of the wire
// format, via the export_test.go convention.
func WriteSSEFrame(w io.Writer, event, data string) error {
	return writeSSEFrame(w, event, data)
}

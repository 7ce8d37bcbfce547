/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package internal

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseDateOrZero parses a store-record timestamp in whatever format the
// writer used. Absent values ("", "null", "None") parse to the zero time
// rather than an error.
func ParseDateOrZero(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "None" {
		return time.Time{}, nil
	}
	return dateparse.ParseAny(s)
}

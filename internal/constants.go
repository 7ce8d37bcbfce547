/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package internal

const (
	DefaultStoreBucket = "mikeb26-clubnight-prod-store"
)

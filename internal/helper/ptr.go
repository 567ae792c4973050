// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package helper

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

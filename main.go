// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/telekom/netops/cmd"
	"github.com/telekom/netops/pkg"
)

func main() {
	cmd.Execute(pkg.Version)
}

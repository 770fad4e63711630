// nanochat - A command-line client for a NanoChat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/nanochat/nanochat-go/internal/cli"

func main() {
	cli.Execute()
}

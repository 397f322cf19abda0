// LexAI - a terminal client for the LexAI legal assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/trygodson/llamatest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

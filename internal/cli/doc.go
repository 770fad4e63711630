// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the nanochat command-line interface.
//
// The CLI is organized as a cobra command tree rooted at "nanochat":
//
//	nanochat chat                     Interactive chat REPL
//	nanochat conversations ...        Conversation management
//	nanochat models ...               Model catalog management
//	nanochat upload FILE              Upload a file to backend storage
//	nanochat transcribe FILE          Transcribe an audio file
//	nanochat config ...               Configuration management
//
// Commands share an App, which wires configuration, logging, the HTTP
// gateway, the preference store, and the model catalog together. The App is
// constructed lazily on first use so that commands like "config path" work
// without a reachable backend.
package cli

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared between the NanoChat
// gateway client, the generation session controller, and the model catalog.
//
// All entities here are owned by the remote backend; the client holds
// read-through copies. The only locally owned concepts are the derived
// ModelGroup projection and the ParamValue union used for model-specific
// generation parameters.
package model

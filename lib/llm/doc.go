// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm speaks the model API wire protocol: request
// construction, response decoding, and Server-Sent-Events streaming
// with tool-use support.
//
// The primary abstraction is [Provider], with blocking ([Provider.Complete])
// and streaming ([Provider.Stream]) calls. [Anthropic] implements it
// against the Messages API (/v1/messages). All HTTP traffic goes
// through a caller-supplied [net/http.Client]; this package never
// configures transports, retries, or TLS.
//
// Streaming responses arrive as SSE frames, reconstructed by
// [SSEScanner] and decoded into [StreamEvent] values by the provider.
// [EventStream] yields those events while assembling the complete
// [Response] internally.
//
// [Client] adds cooperative cancellation on top of a Provider: the
// most recently started call can be torn down with [Client.Abort],
// which surfaces as the distinguished [ErrCancelled].
package llm

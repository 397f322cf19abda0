// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs chat exchanges against the streaming query endpoint.
//
// A Manager owns the transcript, the draft and the in-flight flag of one
// chat session. Submitting appends a complete user entry and an empty
// streaming assistant placeholder, posts the question, and folds each
// decoded fragment into the placeholder until the stream ends. Any failure
// replaces the placeholder with a fixed apology. Only one exchange may run
// at a time.
//
// # Key Types
//
//   - Manager: Session state and exchange orchestration
//   - Gate: Admission check used by interactive front ends
//   - Exchange: Result of one admitted submission
//   - Event: Observer notification for renderers
//
// # Usage
//
//	mgr := session.NewManager(query.NewClient(), session.DefaultConfig())
//	gate := session.NewGate(mgr)
//	gate.SetDraft("Summarize the holding in Marbury v. Madison")
//	if done, ok := gate.SubmitAsync(ctx); ok {
//	    ex := <-done
//	    fmt.Println(ex.Outcome)
//	}
//
// # Failure Handling
//
// Transport errors, non-2xx statuses, decode errors and stalled streams all
// end the exchange the same way. The cause is logged with the session ID
// and kept on Exchange.Cause; the user only sees FailureMessage.
package session

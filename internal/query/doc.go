// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package query provides the HTTP client for the streaming question endpoint.
//
// A question is posted as {"question": "..."} and the answer comes back as an
// unframed UTF-8 byte stream that ends when the server closes the
// connection. Any non-2xx status is a failure and its body is never read.
//
// # Key Types
//
//   - Client: HTTP client for the query endpoint
//   - ClientConfig: Base URL, path and transport timeouts
//   - Response: Accepted answer stream (caller closes Body)
//   - ClientError: Typed error with ErrorType and optional status code
//
// # Usage
//
//	client := query.NewClientWithConfig(&query.ClientConfig{BaseURL: baseURL})
//	resp, err := client.Ask(ctx, "What is the statute of limitations for fraud?")
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
//	reader := stream.NewReader(resp.Body)
package query

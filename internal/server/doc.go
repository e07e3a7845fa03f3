// Package server implements the MCP (Model Context Protocol) server for plate
// reading tools.
//
// The server speaks JSON-RPC 2.0 over stdio so an MCP client can run the plate
// pipeline against image files on the local machine.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - image_load: Load an image and report its dimensions
//   - plate_detect: Run the full pipeline; persists detections unless
//     persist is false
//   - plate_annotate: Run the pipeline without persisting and return the
//     annotated image as base64 PNG
//   - plate_edges: Return the dilated edge mask the contour proposer sees
//   - plate_clean: Normalize a raw OCR string
//   - detections_recent: List the newest stored detections
//
// # Image Caching
//
// Images are cached by path after the first load. A call that follows another
// on the same file does not decode it again.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC errors with code -32000 and the error
// text in data. Malformed tools/call params return -32602.
//
// # Logging
//
// stdout carries protocol messages only. Logs go to the zerolog logger given
// at construction, normally writing to stderr.
package server

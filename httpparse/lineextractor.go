// Package httpparse implements the two nested state machines of spec.md
// §4.5: the line extractor (LE), scanning for CRLF, and the request parser
// (RP), driving REQUEST_LINE -> HEADERS -> BODY over the lines LE yields.
//
// Both operate directly on a *netconn.Conn's read buffer and cursors rather
// than a copy, matching spec.md §3's "Request: transient view over
// Connection" — no Request type is allocated.
//
// Grounded byte-for-byte on original_source's
// POST-Webserver/SimpleWebServer/src/http/http_conn.cpp (parse_line,
// process_read, parse_request_line, parse_headers, parse_content).
package httpparse

import "github.com/reactorweb/httpd/netconn"

// LineStatus is the line extractor's result.
type LineStatus int

const (
	LineOpen LineStatus = iota // need more bytes
	LineOK                     // a full CRLF-terminated line was found
	LineBad                    // malformed CR or LF
)

// scanLine advances c.Scanned looking for CRLF between c.Scanned and
// c.Filled. On LineOK it overwrites the CRLF with two NUL bytes (matching
// the original's in-place null-termination) and leaves c.Scanned just past
// the terminator. It never advances past c.Filled.
func scanLine(c *netconn.Conn) LineStatus {
	i := c.Scanned
	for ; i < c.Filled; i++ {
		b := c.ReadBuf[i]
		if b == '\r' {
			if i+1 == c.Filled {
				return LineOpen
			}
			if c.ReadBuf[i+1] == '\n' {
				c.ReadBuf[i] = 0
				c.ReadBuf[i+1] = 0
				c.Scanned = i + 2
				return LineOK
			}
			return LineBad
		}
		if b == '\n' {
			if i > 0 && c.ReadBuf[i-1] == '\r' {
				c.ReadBuf[i-1] = 0
				c.ReadBuf[i] = 0
				c.Scanned = i + 1
				return LineOK
			}
			return LineBad
		}
	}
	c.Scanned = i
	return LineOpen
}

// currentLine returns the line starting at c.LineStart, as scanned by the
// most recent scanLine call (NUL-terminated in place, but Go slices don't
// need that — this trims at the first embedded NUL for safety).
func currentLine(c *netconn.Conn) string {
	start := c.LineStart
	end := start
	for end < len(c.ReadBuf) && c.ReadBuf[end] != 0 {
		end++
	}
	return string(c.ReadBuf[start:end])
}

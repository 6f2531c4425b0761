// Package response implements the response assembler of spec.md §4.6
// (component F): it composes the status line, Content-Length and Connection
// headers, and the blank line into the connection's write buffer, then
// arranges the gathered-write vector — [header, mapped file] for a
// successful file request, or a single header+inline-body segment for every
// other outcome.
//
// Grounded on original_source's
// POST-Webserver/SimpleWebServer/src/http/http_conn.cpp (add_response,
// add_status_line, add_headers, add_content_length, add_linger,
// add_blank_line, add_content, process_write), with one deliberate
// divergence: spec.md §9 flags the original's process_write as mapping
// BAD_REQUEST to status 404 (reusing error_404_form/title) instead of 400;
// this implementation uses the correct status code/title/body for each
// outcome (400 for BadRequest, 404 for NoResource).
package response

import (
	"fmt"

	"github.com/reactorweb/httpd/netconn"
	"github.com/reactorweb/httpd/router"
)

const (
	okTitle         = "OK"
	badRequestTitle = "Bad Request"
	badRequestBody  = "Your request has bad syntax or is inherently impossible to satisfy.\n"
	forbiddenTitle  = "Forbidden"
	forbiddenBody   = "You do not have permission to get file from this server.\n"
	notFoundTitle   = "Not Found"
	notFoundBody    = "The requested file was not found on this server.\n"
	internalTitle   = "Internal Error"
	internalBody    = "There was an unusual problem serving the requested file.\n"
	emptyFileHTML   = "<html><body></body></html>"
)

// Assemble implements process_write: given the router's outcome for an
// already-parsed request, it writes the header into c.WriteBuf and sets up
// c.IOVecs/IOVecCount/BytesToSend for the write step. It returns false only
// when the header itself doesn't fit WriteBuf (spec.md's add_response
// failure path), in which case the caller must close the connection.
func Assemble(c *netconn.Conn, outcome router.Result) bool {
	switch outcome {
	case router.InternalError:
		return writeError(c, 500, internalTitle, internalBody)
	case router.NoResource:
		return writeError(c, 404, notFoundTitle, notFoundBody)
	case router.Forbidden:
		return writeError(c, 403, forbiddenTitle, forbiddenBody)
	case router.BadRequestResult:
		return writeError(c, 400, badRequestTitle, badRequestBody)
	case router.FileRequest:
		return writeFileResponse(c)
	default:
		return false
	}
}

// writeError composes a single-segment response: status line, headers, and
// an inline HTML body, matching process_write's error-code branches.
func writeError(c *netconn.Conn, status int, title, body string) bool {
	if !addStatusLine(c, status, title) {
		return false
	}
	if !addHeaders(c, len(body)) {
		return false
	}
	if !addContent(c, body) {
		return false
	}
	finalizeSingleSegment(c)
	return true
}

// writeFileResponse composes the FILE_REQUEST branch: a gathered write of
// [header, mapped file] when the file is non-empty, or an inline empty-body
// HTML document when it is zero-length (the original's "<html><body></body></html>"
// fallback, since mmap of a zero-length file is undefined).
func writeFileResponse(c *netconn.Conn) bool {
	if !addStatusLine(c, 200, okTitle) {
		return false
	}
	if c.FileSize != 0 {
		if !addHeaders(c, int(c.FileSize)) {
			return false
		}
		c.IOVecs[0] = netconn.IOVec{Base: c.WriteBuf[:c.WriteIdx], Len: c.WriteIdx}
		c.IOVecs[1] = netconn.IOVec{Base: c.MappedFile, Len: len(c.MappedFile)}
		c.IOVecCount = 2
		c.BytesToSend = c.WriteIdx + len(c.MappedFile)
		return true
	}
	if !addHeaders(c, len(emptyFileHTML)) {
		return false
	}
	if !addContent(c, emptyFileHTML) {
		return false
	}
	finalizeSingleSegment(c)
	return true
}

func finalizeSingleSegment(c *netconn.Conn) {
	c.IOVecs[0] = netconn.IOVec{Base: c.WriteBuf[:c.WriteIdx], Len: c.WriteIdx}
	c.IOVecCount = 1
	c.BytesToSend = c.WriteIdx
}

func addStatusLine(c *netconn.Conn, status int, title string) bool {
	return addResponse(c, fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, title))
}

func addHeaders(c *netconn.Conn, contentLen int) bool {
	if !addContentLength(c, contentLen) {
		return false
	}
	if !addLinger(c) {
		return false
	}
	return addBlankLine(c)
}

func addContentLength(c *netconn.Conn, contentLen int) bool {
	return addResponse(c, fmt.Sprintf("Content-Length:%d\r\n", contentLen))
}

func addLinger(c *netconn.Conn) bool {
	conn := "close"
	if c.KeepAlive {
		conn = "keep-alive"
	}
	return addResponse(c, fmt.Sprintf("Connection:%s\r\n", conn))
}

func addBlankLine(c *netconn.Conn) bool {
	return addResponse(c, "\r\n")
}

func addContent(c *netconn.Conn, content string) bool {
	return addResponse(c, content)
}

// addResponse appends s to c.WriteBuf, matching add_response's
// vsnprintf-into-remaining-space discipline: it fails (without partially
// writing) if s doesn't fit what's left of the buffer.
func addResponse(c *netconn.Conn, s string) bool {
	remaining := len(c.WriteBuf) - c.WriteIdx
	if len(s) > remaining {
		return false
	}
	copy(c.WriteBuf[c.WriteIdx:], s)
	c.WriteIdx += len(s)
	return true
}

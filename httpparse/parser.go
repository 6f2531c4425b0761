package httpparse

import (
	"strconv"
	"strings"

	"github.com/reactorweb/httpd/netconn"
)

// Result is the outcome of Parse, matching spec.md §4.5's result-code set
// (minus CLOSED_CONNECTION, which the read step — netconn.ReadOnce —
// produces, and NO_RESOURCE/FORBIDDEN_REQUEST/FILE_REQUEST/INTERNAL_ERROR,
// which the router (G) produces once routing the completed request).
type Result int

const (
	// NoRequest means await more bytes; the connection stays IDLE/PARSING.
	NoRequest Result = iota
	// GetRequest means a complete request (GET or POST, despite the name —
	// spec.md's terminology, kept verbatim) is ready for routing.
	GetRequest
	// BadRequest is a malformed request line, header, or method.
	BadRequest
)

// Parse drives the request parser (RP) over whatever new bytes scanLine can
// reach, exactly following spec.md §4.5's algorithm:
//
//	while (check_state==BODY && lineStatus==LINE_OK) || (lineStatus=scanLine())==LINE_OK
//
// Note this means that once BODY is entered on an incomplete body, the next
// iteration falls through to scanLine() again rather than skipping straight
// to parseBody — matching the original's line-oriented re-entry exactly
// (harmless in practice since body payloads here never contain a bare CRLF).
// It returns as soon as a terminal result is known, or NoRequest once no
// further line is available.
func Parse(c *netconn.Conn) Result {
	lineStatus := LineOK
	for {
		if c.CheckState == netconn.CheckBody && lineStatus == LineOK {
			// reuse lineStatus from the line that completed HEADERS
		} else {
			lineStatus = scanLine(c)
		}
		if lineStatus == LineBad {
			return BadRequest
		}
		if lineStatus == LineOpen {
			if c.Filled == len(c.ReadBuf) {
				// Buffer exhausted without completing the current line:
				// protocol overrun (spec.md §8 boundary case).
				return BadRequest
			}
			return NoRequest
		}

		line := currentLine(c)
		// In BODY, LineStart stays at the first body byte so parseBody
		// measures the body from there even after scanLine has moved
		// Scanned across bytes that arrived in earlier reads.
		if c.CheckState != netconn.CheckBody {
			c.LineStart = c.Scanned
		}

		switch c.CheckState {
		case netconn.CheckRequestLine:
			if !parseRequestLine(c, line) {
				return BadRequest
			}
			c.CheckState = netconn.CheckHeaders

		case netconn.CheckHeaders:
			ret, ok := parseHeaderLine(c, line)
			if !ok {
				return BadRequest
			}
			if ret == GetRequest {
				return GetRequest
			}

		case netconn.CheckBody:
			ret := parseBody(c)
			if ret == GetRequest {
				return GetRequest
			}
			lineStatus = LineOpen
		}
	}
}

// parseRequestLine handles REQUEST_LINE (spec.md §4.5).
func parseRequestLine(c *netconn.Conn, line string) bool {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return false
	}
	method, url, version := fields[0], fields[1], fields[2]

	switch strings.ToUpper(method) {
	case "GET":
		c.Method = netconn.MethodGet
	case "POST":
		c.Method = netconn.MethodPost
	default:
		return false
	}

	url = stripSchemeHostPrefix(url)
	if !strings.HasPrefix(url, "/") {
		return false
	}
	if url == "/" {
		url = "/judge.html"
	}
	c.URL = url

	if !strings.EqualFold(version, "HTTP/1.1") {
		return false
	}
	c.Version = version
	return true
}

func stripSchemeHostPrefix(url string) string {
	lower := strings.ToLower(url)
	var rest string
	switch {
	case strings.HasPrefix(lower, "http://"):
		rest = url[len("http://"):]
	case strings.HasPrefix(lower, "https://"):
		rest = url[len("https://"):]
	default:
		return url
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return ""
}

// parseHeaderLine handles one HEADERS line (spec.md §4.5). Recognized
// headers are Connection, Content-Length, Host; any other header is ignored
// and is not logged.
func parseHeaderLine(c *netconn.Conn, line string) (Result, bool) {
	if line == "" {
		if c.ContentLen > 0 {
			c.CheckState = netconn.CheckBody
			return NoRequest, true
		}
		return GetRequest, true
	}

	name, value, ok := splitHeader(line)
	if !ok {
		return NoRequest, true // unknown/malformed header line: ignored, not fatal
	}

	switch strings.ToLower(name) {
	case "connection":
		if strings.EqualFold(value, "keep-alive") {
			c.KeepAlive = true
		}
	case "content-length":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return NoRequest, false
		}
		c.ContentLen = n
	case "host":
		c.Host = value
	}
	return NoRequest, true
}

func splitHeader(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimLeft(line[i+1:], " \t"), true
}

// parseBody handles the BODY state (spec.md §4.5): requires
// filled >= checkStateCursor(lineStart) + ContentLen.
func parseBody(c *netconn.Conn) Result {
	need := c.LineStart + c.ContentLen
	if c.Filled < need {
		return NoRequest
	}
	c.Body = c.ReadBuf[c.LineStart:need]
	return GetRequest
}

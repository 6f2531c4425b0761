// Package router implements the request router and resource resolver of
// spec.md §4.6 (component G): do_request's URL-to-action dispatch (the
// numeric /0../6 routes, including the POST login/register CGI-style
// actions), followed by stat-based permission/type checks and the file
// mapping that feeds the response assembler (F).
//
// Grounded on original_source's
// POST-Webserver/SimpleWebServer/src/http/http_conn.cpp (do_request), with
// the login/register body parsing rewritten against net/url's form decoder
// instead of the original's hand-rolled "user=...&password=..." byte
// scanning, and the SQL insert parameterized (spec.md §9 fixes the
// original's string-concatenated INSERT, which is vulnerable to injection).
package router

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/dbpool"
	"github.com/reactorweb/httpd/logging"
	"github.com/reactorweb/httpd/netconn"
	"github.com/reactorweb/httpd/userstore"
)

// Result is do_request's outcome (spec.md §4.6), mirroring the original's
// HTTP_CODE values that survive past parsing: NO_RESOURCE, FORBIDDEN_REQUEST,
// BAD_REQUEST, FILE_REQUEST, INTERNAL_ERROR.
type Result int

const (
	NoResource Result = iota
	Forbidden
	BadRequestResult
	FileRequest
	InternalError
)

// Router resolves a parsed request to a filesystem resource, handling the
// /0../6 action routes and the login/register side effects along the way.
type Router struct {
	DocumentRoot string
	Users        *userstore.Store
	DB           *dbpool.Pool
	Log          *logging.Logger
}

// New constructs a Router.
func New(cfg config.Config, users *userstore.Store, db *dbpool.Pool, log *logging.Logger) *Router {
	return &Router{DocumentRoot: cfg.DocumentRoot, Users: users, DB: db, Log: log}
}

// Route implements do_request: it rewrites c.URL according to the action
// encoded in the single character after the URL's last '/', then resolves
// the resulting path under DocumentRoot via stat and, on success,
// memory-maps the file.
func (rt *Router) Route(ctx context.Context, c *netconn.Conn) Result {
	action := actionChar(c.URL)

	switch action {
	case '2', '3':
		rt.handleLoginOrRegister(ctx, c, action)
	case '0':
		c.URL = "/register.html"
	case '1':
		c.URL = "/login.html"
	case '5':
		c.URL = "/picture.html"
	case '6':
		c.URL = "/video.html"
	// else: c.URL is used as-is (already rewritten "/" -> "/judge.html" by
	// the parser).
	}

	realPath := filepath.Join(rt.DocumentRoot, filepath.Clean("/"+c.URL))
	if !strings.HasPrefix(realPath, filepath.Clean(rt.DocumentRoot)+string(filepath.Separator)) {
		// Path traversal outside the document root (the original has no
		// such check; spec.md §9 requires one — see DESIGN.md).
		return Forbidden
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return NoResource
	}
	if info.IsDir() {
		return BadRequestResult
	}
	if info.Mode().Perm()&0o004 == 0 {
		return Forbidden
	}

	c.ResolvedPath = realPath
	c.FileSize = info.Size()
	if info.Size() > 0 {
		data, err := netconn.MapFile(realPath, info.Size())
		if err != nil {
			return InternalError
		}
		c.MappedFile = data
	}
	return FileRequest
}

// handleLoginOrRegister parses the POST body ("user=<name>&password=<pwd>")
// and performs the side effect the original's do_request inlines: action
// "3" inserts a new user row (only if the name is unused), action "2" checks
// credentials against the in-memory store. Both rewrite c.URL to the
// resulting landing page.
func (rt *Router) handleLoginOrRegister(ctx context.Context, c *netconn.Conn, action byte) {
	name, password := parseCredentials(c.Body)

	switch action {
	case '3':
		if rt.Users.Exists(name) {
			c.URL = "/registerError.html"
			return
		}
		if rt.DB != nil {
			if err := rt.insertUser(ctx, name, password); err != nil {
				if rt.Log != nil {
					rt.Log.Error("user insert failed", map[string]interface{}{"error": err.Error()})
				}
				c.URL = "/registerError.html"
				return
			}
		}
		rt.Users.Add(name, password)
		c.URL = "/login.html"

	case '2':
		if stored, ok := rt.Users.Lookup(name); ok && stored == password {
			c.URL = "/welcome.html"
		} else {
			c.URL = "/loginError.html"
		}
	}
}

// insertUser runs the parameterized equivalent of the original's
// string-concatenated "INSERT INTO user(username, passwd) VALUES(...)".
func (rt *Router) insertUser(ctx context.Context, name, password string) error {
	lease, err := rt.DB.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Close()

	_, err = lease.Conn().ExecContext(ctx,
		"INSERT INTO user(username, passwd) VALUES(?, ?)", name, password)
	return err
}

// parseCredentials decodes a body shaped like "user=alice&password=hunter2"
// using net/url's form decoder rather than the original's fixed-offset byte
// scan (which hardcodes the "user=" / "&password=" field widths).
func parseCredentials(body []byte) (name, password string) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", ""
	}
	return values.Get("user"), values.Get("password")
}

// actionChar returns the single byte immediately after the URL's last '/',
// matching the original's do_request dispatch on *(p+1) (http_conn.cpp:353)
// rather than the whole trailing segment — so "/2CGISQL.cgi" dispatches the
// same as "/2". Returns 0 if the URL ends at (or has no) '/'.
func actionChar(u string) byte {
	i := strings.LastIndexByte(u, '/')
	if i < 0 || i+1 >= len(u) {
		return 0
	}
	return u[i+1]
}

package httpd

// HandlerFunc serves a routed request. It may send its own response
// through res, return a body to be wrapped in a 200 text/html response,
// return nil, or fail with an error (500 when still answerable).
type HandlerFunc func(req *Request, res *Response) ([]byte, error)

// Route is either a static file or a handler.
type Route struct {
	File    string
	Handler HandlerFunc
}

// File returns a route serving name from the server's file system.
func File(name string) Route {
	return Route{File: name}
}

// Func returns a route served by fn.
func Func(fn HandlerFunc) Route {
	return Route{Handler: fn}
}

// Routes maps exact request paths to routes.
type Routes map[string]Route

// Lookup finds the route for path. An unmatched "/" falls back to
// "/index.html".
func (r Routes) Lookup(path string) (Route, bool) {
	if rt, ok := r[path]; ok {
		return rt, true
	}
	if path == "/" {
		rt, ok := r["/index.html"]
		return rt, ok
	}
	return Route{}, false
}

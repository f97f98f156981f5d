// Package server hosts the Fiber HTTP service for the gateway: the request-ID
// middleware, the catch-all route that hands every page request to the proxy
// handler, and the shared upstream http.Client. Control endpoints under /-/
// are mounted by the routes subpackage; keep exports narrow and accept
// explicit dependencies so tests can inject fakes.
package server

// Package domain holds the request/response values of the conversion pipeline
// and its error taxonomy. It has no HTTP, Markdown or browser dependencies.
package domain

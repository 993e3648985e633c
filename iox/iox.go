// Package iox provides I/O helpers for resource cleanup and capture.
package iox

import "io"

// DiscardClose closes c and discards the error.
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads rc to EOF and closes it, discarding errors, so the HTTP
// transport can reuse the connection:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}

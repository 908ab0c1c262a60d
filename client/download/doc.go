// Package download streams HTTP response bodies to disk.
//
// [Handle] writes the body to a temporary file alongside the
// destination path and renames it into place once the byte count and
// optional checksum check out:
//
//	err := download.Handle(ctx, resp.Body, resp.ContentLength, destPath, logger,
//		download.WithChecksum(sha256.New(), want),
//		download.WithCounter(&received),
//	)
//
// [Queue] runs many downloads on a bounded worker pool and collects
// their errors. Most callers reach both through the higher-level
// client package, which wires them into the file download handler
// and the batch helpers.
package download

// Package sse parses Server-Sent-Event streams incrementally and
// delivers the parsed events to a consumer in order.
//
// # Parsing
//
// A [Parser] is fed the whole response received so far. It remembers
// where the last complete frame ended, so repeated calls on a growing
// buffer emit each frame exactly once:
//
//	p := sse.NewParser(logger)
//	events := p.Parse(buf) // complete frames only
//	...
//	events = p.Flush(buf)  // stream ended, deliver the trailing frame
//
// A frame whose value or data is "[DONE]", or an "event: done" frame,
// ends the stream and is not emitted.
//
// # Delivery
//
// A [Queue] decouples parsing from the consumer. [Queue.Run] invokes
// the [Handler] serially, in arrival order, until the queue is closed
// and drained.
package sse

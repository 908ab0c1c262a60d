// Package client is a REST client built on [net/http] that records
// every exchange as a [Response] instead of failing on error statuses.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//		client.WithThrottle(5, 10),
//	)
//
// # Sending Requests
//
// The verb helpers send a request and return the recorded exchange.
// Transport failures and error statuses mark the Response unsuccessful;
// [Response.Validate] turns that into an error:
//
//	resp, err := c.Get(ctx, "https://api.example.com/v1/items",
//		client.WithRequestHeaders(map[string]string{"Authorization": "Bearer " + token}),
//		client.WithRequestTimeout(5*time.Second),
//	)
//	if err != nil { ... } // invalid input or cancelled context
//	if err := resp.Validate(false); err != nil { ... }
//	err = resp.Decode(&items)
//
// [Client.Do] keeps the status-checking style for prebuilt requests:
//
//	req, err := client.Request(ctx, u, http.MethodGet)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result))
//
// # Server-Sent Events
//
// [Client.Stream] parses the response as an event stream while it
// arrives and hands every event to a callback, one at a time:
//
//	resp, err := c.Stream(ctx, http.MethodPost, u, prompt,
//		func(ctx context.Context, ev sse.Event) error {
//			fmt.Print(ev.Text())
//			return nil
//		})
//
// # Downloads
//
// [Client.DownloadFile], [Client.DownloadBytes], [Client.DownloadTexture]
// and [Client.DownloadAudio] fetch a URL through the download cache set
// with [WithCacheStore]. [Client.DownloadAsync] fetches a batch on a
// bounded worker pool:
//
//	results, err := c.DownloadAsync(ctx, "/tmp/assets", urls)
//	for _, r := range results {
//		if err := r.Err(); err != nil { ... }
//	}
//
// For lower-level control see the
// [github.com/adamwoolhether/rest/client/download] package.
package client

package ratelimit

import (
	"github.com/go-resty/resty/v2"
)

// Attach governs every request made through client: it waits for quota,
// reserves a request, then corrects the counters from the response headers.
func (g *Governor) Attach(client *resty.Client) *resty.Client {
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := g.WaitIfNeeded(req.Context()); err != nil {
			return err
		}
		g.ReserveRequest()
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		g.UpdateFromHeaders(resp.Header())
		return nil
	})

	return client
}

// Package http implements the checkout collaborators over JSON HTTP APIs.
// Every call goes through a circuit breaker client and runs in a client span.
package http

import (
	"context"
	"net/url"
	"strings"

	"github.com/virtualmercado/shopdrive-sub002/pkg/httpclient"
)

const tracerName = "storefront-checkout/provider/http"

// JSONDoer sends JSON requests and decodes the data envelope of responses.
// httpclient.CircuitBreakerClient satisfies this.
type JSONDoer interface {
	DoJSON(ctx context.Context, method, url string, in, out any, opts ...httpclient.RequestOption) error
}

// endpoint joins a base URL and path segments, escaping each segment.
func endpoint(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// internal/scrape/page.go
package scrape

// Page is one unit of paginated API output after parsing.
type Page[T any] struct {
	Items   []T
	Cursor  string
	HasMore bool
}

// Capture is a network exchange lifted out of the browser: the signed
// request URL, the headers the page sent, and the response body. Every
// capture is both a source of items and a fresh replay seed.
type Capture struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// ReplaySeed is the material needed to re-issue a signed API request
// outside the browser. The URL retains its original signature
// parameters; only the cursor is substituted per request.
type ReplaySeed struct {
	URL     string
	Headers map[string]string
}

// Valid reports whether the seed can back a direct fetch.
func (s ReplaySeed) Valid() bool {
	return s.URL != ""
}

// SeedFromCapture derives a replay seed from an intercepted exchange.
func SeedFromCapture(c Capture) ReplaySeed {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return ReplaySeed{URL: c.URL, Headers: headers}
}

// Signer re-signs a request URL after parameter substitution. Bare
// cursor substitution keeps the original signature valid on most
// endpoints, so the zero configuration runs without one.
type Signer interface {
	Sign(url string) (string, error)
}

package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/tradelink/leadexchange/pkg/contextkeys"
)

// DefaultMaxBodyBytes caps parsed request bodies
const DefaultMaxBodyBytes int64 = 1 << 20

// BodyParserMiddleware decodes JSON and urlencoded bodies into a
// request-scoped map (see contextkeys.GetParsedBody) and restores r.Body so
// handlers can decode into their own types. Requests for which
// ShouldSkipBodyParsers is true pass through untouched.
func BodyParserMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ShouldSkipBodyParsers(r.URL.RequestURI()) || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mediaType != "application/json" && mediaType != "application/x-www-form-urlencoded" {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					WriteMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				WriteBadRequest(w, "Invalid request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))

			parsed, err := parseBody(mediaType, raw)
			if err != nil {
				WriteBadRequest(w, "Invalid request body")
				return
			}

			ctx := contextkeys.WithParsedBody(r.Context(), parsed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBody(mediaType string, raw []byte) (map[string]any, error) {
	parsed := make(map[string]any)
	if len(bytes.TrimSpace(raw)) == 0 {
		return parsed, nil
	}

	if mediaType == "application/json" {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		// Arrays and scalars are valid JSON but carry no named fields.
		if obj, ok := v.(map[string]any); ok {
			return obj, nil
		}
		return parsed, nil
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	for key := range values {
		parsed[key] = values.Get(key)
	}
	return parsed, nil
}

// BodyString returns a string field of the parsed request body
func BodyString(r *http.Request, field string) (string, bool) {
	body, ok := contextkeys.GetParsedBody(r.Context())
	if !ok {
		return "", false
	}
	s, ok := body[field].(string)
	return s, ok
}

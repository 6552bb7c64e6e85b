package ims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

// fetcher issues requests to the IMS server, attaching the session's
// credentials and reacting to authorization failures.
// It holds no state of its own beyond its collaborators.
type fetcher struct {
	client    *http.Client
	session   *Session
	metrics   *Metrics
	logger    *zap.Logger
	userAgent string
}

// send issues req, authenticated if the session is live and anonymous
// is false.
//
// A 401 response to an authenticated request clears the session.
// Non-success responses are returned to the caller as they are; send only
// returns an error when no response could be obtained or the session
// could not be cleared.
func (f *fetcher) send(req *http.Request, anonymous bool) (*http.Response, error) {
	token, authenticated := "", false
	if !anonymous {
		token, authenticated = f.session.liveToken()
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", f.userAgent)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	logger := f.logger.With(
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", requestID),
		zap.Bool("authenticated", authenticated),
	)
	logger.Debug("issuing request")

	start := time.Now()
	resp, err := f.client.Do(req)
	f.metrics.Duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	f.metrics.Requests.WithLabelValues(req.Method, code, strconv.FormatBool(authenticated)).Inc()

	if err != nil {
		return nil, fmt.Errorf("ims: %s %s: %w", req.Method, req.URL, err)
	}

	if isSuccess(resp.StatusCode) || resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}

	switch {
	case resp.StatusCode != http.StatusUnauthorized:
		logger.Error("non-OK response from server", zap.String("status", resp.Status))

	case authenticated:
		logger.Warn("authentication failed for resource")
		cleared, err := f.session.clearToken(req.Context(), token)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if cleared {
			f.metrics.Invalidations.Inc()
		}

	default:
		logger.Debug("authentication required for resource")
	}

	return resp, nil
}

// jsonRequest describes a JSON exchange.
type jsonRequest struct {
	// Body is sent with POST. A nil Body means GET.
	Body any
	// Validator is sent as If-None-Match on GET and If-Match on POST.
	Validator string
	// Header holds additional request headers.
	Header http.Header
	// Anonymous sends the request without credentials.
	Anonymous bool
}

// fetchJSON performs a JSON exchange with url.
// The request content type defaults to JSON and any other content type
// is rejected. A successful response must also be JSON.
func (f *fetcher) fetchJSON(ctx context.Context, url string, opts jsonRequest) (*http.Response, error) {
	header := opts.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	if contentType := header.Get("Content-Type"); contentType != "" {
		if !isJSON(contentType) {
			return nil, fmt.Errorf("%w: request content type %q", ErrNotJSON, contentType)
		}
	} else {
		header.Set("Content-Type", jsonContentType)
	}

	method := http.MethodGet
	var body io.Reader
	if opts.Body != nil {
		method = http.MethodPost
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("ims: failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if opts.Validator != "" {
		if method == http.MethodGet {
			header.Set("If-None-Match", opts.Validator)
		} else {
			header.Set("If-Match", opts.Validator)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("ims: failed to build request for %s: %w", url, err)
	}
	req.Header = header

	resp, err := f.send(req, opts.Anonymous)
	if err != nil {
		return nil, err
	}

	if isSuccess(resp.StatusCode) {
		if contentType := resp.Header.Get("Content-Type"); !isJSON(contentType) {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: response content type %q from %s", ErrNotJSON, contentType, url)
		}
	}

	return resp, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// isJSON reports whether contentType has media type application/json.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == jsonContentType
}

// drain discards the rest of body and closes it so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

type RequestOption func(*requestConfig)

type requestConfig struct {
	header      http.Header
	query       url.Values
	payload     []byte
	hasPayload  bool
	bearerToken string
	err         error
}

func (rc *requestConfig) body() io.Reader {
	if !rc.hasPayload {
		return nil
	}
	return bytes.NewReader(rc.payload)
}

// WithHeader sets a header for one request, replacing any default value.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.header == nil {
			rc.header = make(http.Header)
		}
		rc.header.Set(key, value)
	}
}

func WithQuery(values url.Values) RequestOption {
	return func(rc *requestConfig) {
		if rc.query == nil {
			rc.query = make(url.Values)
		}
		for k, vv := range values {
			for _, v := range vv {
				rc.query.Add(k, v)
			}
		}
	}
}

// WithJSON encodes v as the request body.
func WithJSON(v any) RequestOption {
	return func(rc *requestConfig) {
		b, err := json.Marshal(v)
		if err != nil {
			rc.err = err
			return
		}
		rc.payload = b
		rc.hasPayload = true
	}
}

// WithBody sends b as is.
func WithBody(b []byte) RequestOption {
	return func(rc *requestConfig) {
		rc.payload = append([]byte(nil), b...)
		rc.hasPayload = true
	}
}

// WithBearerToken sets "Authorization: Bearer <token>" unless an explicit
// Authorization header is given.
func WithBearerToken(token string) RequestOption {
	return func(rc *requestConfig) { rc.bearerToken = token }
}

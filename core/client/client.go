// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client calls the service's REST api.

A router client short-circuits the network stack and serves every request
in-process through the mux router with a response recorder, which makes it
ideal for unit tests and for handlers that need other handlers to fulfill
a request. A URL client performs real HTTP requests against a running
service instead.

Request bodies are JSON encoded, unless passed as raw []byte. Response
bodies are JSON decoded into result, unless result is a raw *[]byte or
nil. Paths may include a query string.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
)

// Client calls REST routes either in-process through a router or over HTTP.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization

	defaultHeaders map[string]string
}

// NewWithRouter returns a client that serves requests in-process through
// router. Authorize requests with WithRole or WithAdminAuthorization.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL returns a client that performs HTTP requests against the
// service running at url. Authorize requests with WithToken.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a copy of the client that sends the given header
// with every request.
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithToken returns a copy of the client that sends token as bearer token.
// Only URL clients send the token; router clients authorize with WithRole.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization is shorthand for WithRole("admin").
func (c Client) WithAdminAuthorization() Client {
	return c.WithRole("admin")
}

// WithRole returns a copy of the client whose requests carry an
// authorization with the given role. The role bypasses credential
// checking and therefore only works for router clients; URL clients
// authenticate with WithToken.
func (c Client) WithRole(role string) Client {
	c.auth = &access.Authorization{
		Roles: []string{role},
	}
	return c
}

func (c Client) requestContext() context.Context {
	ctx := context.Background()
	if c.auth != nil {
		ctx = c.auth.ContextWithAuthorization(ctx)
	}
	return ctx
}

// do executes a single request. The router - if available - is called
// in-process through a response recorder, otherwise the request goes
// through the network stack.
func (c Client) do(method, path string, headers map[string]string, body []byte) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, _ := http.NewRequestWithContext(c.requestContext(), method, c.url+path, reader)
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}

	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, nil
}

// decode unmarshals a response body into result. result can be a raw
// *[]byte to receive the body unparsed, or nil to skip decoding.
func decode(resBody []byte, result interface{}) error {
	if resBody == nil || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

// RawGet requests path and decodes the response into result. Expects
// http.StatusOK; a http.StatusNoContent reply is accepted as well and
// leaves result untouched. Any other status is reported as an error.
// The actual status code is returned in every case.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.RawGetWithHeader(path, nil, result)
	return status, err
}

// RawGetWithHeader is RawGet with extra request headers. It also returns
// the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	status, resHeader, resBody, err := c.do(http.MethodGet, path, header, nil)
	if err != nil {
		return status, nil, err
	}
	if status == http.StatusNoContent {
		return status, resHeader, nil
	}
	if status != http.StatusOK {
		return status, resHeader, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, resHeader, decode(resBody, result)
}

// RawPost posts body to path and decodes the response into result.
// http.StatusOK, http.StatusCreated and http.StatusAccepted are accepted
// responses, anything else is reported as an error. The actual status
// code is returned in every case.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.RawPostWithHeader(path, nil, body, result)
}

// RawPostWithHeader is RawPost with extra request headers.
func (c Client) RawPostWithHeader(path string, headers map[string]string, body interface{}, result interface{}) (int, error) {
	j, ok := body.([]byte)
	if !ok {
		var err error
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}

	status, _, resBody, err := c.do(http.MethodPost, path, headers, j)
	if err != nil {
		return status, err
	}
	if status != http.StatusCreated && status != http.StatusOK && status != http.StatusAccepted {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusCreated, strings.TrimSpace(string(resBody)))
	}
	return status, decode(resBody, result)
}

// RawPut puts body to path and decodes the response into result.
// http.StatusOK, http.StatusCreated and http.StatusNoContent are accepted
// responses, anything else is reported as an error. The actual status
// code is returned in every case.
//
// http.StatusConflict is special: the error is flagged, but the response
// is still decoded, so the caller receives the conflicting version of the
// object in result.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	j, ok := body.([]byte)
	if !ok {
		var err error
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("PUT to %s: %w", path, err)
		}
	}

	status, _, resBody, err := c.do(http.MethodPut, path, nil, j)
	if err != nil {
		return status, err
	}

	// on http.StatusConflict the handler returned the conflicting object,
	// decode it before flagging the error
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent && status != http.StatusConflict {
		return status, fmt.Errorf("put got status=%d body=%s", status, strings.TrimSpace(string(resBody)))
	}
	err = decode(resBody, result)
	if status == http.StatusConflict {
		return status, fmt.Errorf("conflict while writing to path:'%s', wanted to write %s, conflict: %s", path, string(j), string(resBody))
	}
	return status, err
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent,
// anything else is reported as an error together with the response body.
func (c Client) RawDelete(path string) (int, error) {
	status, _, resBody, err := c.do(http.MethodDelete, path, nil, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusNoContent {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	return status, nil
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// RemoteClient talks to a pdiffcopy server (C7) over HTTP. One RemoteClient
// is created per (host, port) and its *http.Client is reused across every
// worker, so persistent connections are pooled instead of dialed per block
// (§5 "connection pooling", §9 design note).
type RemoteClient struct {
	baseURL string
	http    *http.Client
}

// remoteClients caches one RemoteClient per (host, port), the pool-keyed
// reuse §4.6 and §5 require.
var (
	remoteClientsMu sync.Mutex
	remoteClients   = map[string]*RemoteClient{}
)

// dialRemote returns the shared RemoteClient for host:port, creating it
// (with a connection pool sized for concurrency) on first use.
func dialRemote(host string, port int, concurrency int) *RemoteClient {
	key := fmt.Sprintf("%s:%d", host, port)

	remoteClientsMu.Lock()
	defer remoteClientsMu.Unlock()
	if c, ok := remoteClients[key]; ok {
		return c
	}

	transport := &http.Transport{
		MaxIdleConns:        concurrency * 2,
		MaxIdleConnsPerHost: concurrency * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &RemoteClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http:    &http.Client{Transport: transport},
	}
	remoteClients[key] = c
	return c
}

type infoResponse struct {
	Size int64 `json:"size"`
}

// Describe fetches the remote file's size, or a NOT_FOUND error if it does
// not exist (C7 operation 1).
func (c *RemoteClient) Describe(ctx context.Context, path string) (int64, error) {
	u := c.baseURL + "/info?" + url.Values{"path": {path}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, newErr(ErrNetwork, "Describe", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, newErr(ErrNetwork, "Describe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, newErr(ErrNotFound, "Describe", errors.Errorf("remote path %q not found", path))
	}
	if resp.StatusCode != http.StatusOK {
		return 0, newErr(ErrProtocol, "Describe", errors.Errorf("unexpected status %d", resp.StatusCode))
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, newErr(ErrProtocol, "Describe", err)
	}
	return info.Size, nil
}

// HashStream issues C7 operation 2 and decodes the response into the
// ascending HashEntry channel C4's remote case requires.
func (c *RemoteClient) HashStream(ctx context.Context, path string, params Params) (<-chan HashEntry, <-chan error) {
	method, ok := LookupHash(params.hashMethodName())
	if !ok {
		errc := make(chan error, 1)
		errc <- newErr(ErrUnknownHash, "HashStream", errors.Errorf("unknown hash method %q", params.hashMethodName()))
		close(errc)
		out := make(chan HashEntry)
		close(out)
		return out, errc
	}

	q := url.Values{
		"path":        {path},
		"block_size":  {strconv.FormatInt(params.effectiveBlockSize(), 10)},
		"method":      {params.hashMethodName()},
		"concurrency": {strconv.Itoa(params.effectiveConcurrency())},
	}
	u := c.baseURL + "/hashes?" + q.Encode()

	out := make(chan HashEntry)
	errc := make(chan error, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		errc <- newErr(ErrNetwork, "HashStream", err)
		close(out)
		close(errc)
		return out, errc
	}

	resp, err := c.http.Do(req)
	if err != nil {
		errc <- newErr(ErrNetwork, "HashStream", err)
		close(out)
		close(errc)
		return out, errc
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		kind := ErrProtocol
		if resp.StatusCode == http.StatusNotFound {
			kind = ErrNotFound
		} else if resp.StatusCode == http.StatusUnprocessableEntity {
			kind = ErrUnknownHash
		}
		errc <- newErr(kind, "HashStream", errors.Errorf("unexpected status %d", resp.StatusCode))
		close(out)
		close(errc)
		return out, errc
	}

	decoded, decErrc := decodeHashStream(ctx, resp.Body, method.Size)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		defer close(errc)
		for {
			select {
			case e, ok := <-decoded:
				if !ok {
					decoded = nil
					break
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case err, ok := <-decErrc:
				if !ok {
					decErrc = nil
					break
				}
				errc <- err
				return
			}
			if decoded == nil && decErrc == nil {
				return
			}
		}
	}()

	return out, errc
}

// GetBlock issues C7 operation 3 (read) and returns exactly length bytes.
func (c *RemoteClient) GetBlock(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	q := url.Values{
		"path":   {path},
		"offset": {strconv.FormatInt(offset, 10)},
		"length": {strconv.FormatInt(length, 10)},
	}
	u := c.baseURL + "/block?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newErr(ErrNetwork, "GetBlock", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newErr(ErrNetwork, "GetBlock", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return nil, newErr(ErrProtocol, "GetBlock", errors.Errorf("offset %d out of range", offset))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newErr(ErrProtocol, "GetBlock", errors.Errorf("unexpected status %d", resp.StatusCode))
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, newErr(ErrProtocol, "GetBlock", errors.Wrap(err, "truncated block response"))
	}
	return buf, nil
}

// PutBlock issues C7 operation 3 (write).
func (c *RemoteClient) PutBlock(ctx context.Context, path string, offset int64, data []byte) error {
	q := url.Values{
		"path":   {path},
		"offset": {strconv.FormatInt(offset, 10)},
	}
	u := c.baseURL + "/block?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return newErr(ErrNetwork, "PutBlock", err)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return newErr(ErrNetwork, "PutBlock", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return newErr(ErrProtocol, "PutBlock", errors.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

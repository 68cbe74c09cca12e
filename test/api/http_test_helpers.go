package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func sendJSON[TResp any](
	c *http.Client,
	method string,
	url string,
	req interface{},
) (*http.Response, TResp, error) {
	var parsed TResp

	var body io.Reader
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, parsed, err
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, parsed, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, parsed, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, parsed, err
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return resp, parsed, fmt.Errorf("unmarshal response %q: %w", string(raw), err)
		}
	}

	return resp, parsed, nil
}

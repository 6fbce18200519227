package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"

	"nftmint/internal/apiauth"
	"nftmint/internal/config"
)

const remotePollInterval = time.Second

type remoteJob struct {
	RequestID string `json:"requestId"`
	State     string `json:"state"`
	TxHash    string `json:"txHash"`
	TxURL     string `json:"txUrl"`
	TokenID   string `json:"tokenId"`
	Cause     string `json:"cause"`
	Error     string `json:"error"`
}

type remoteClient struct {
	base   string
	secret string
	http   *http.Client
}

func runRemoteMint(ctx context.Context, base, key string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c := &remoteClient{
		base:   strings.TrimRight(base, "/"),
		secret: cfg.Service.HMACSecret,
		http:   &http.Client{Timeout: 30 * time.Second},
	}

	var sess struct {
		State        string `json:"state"`
		AccountShort string `json:"accountShort"`
		Error        string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/connect", nil, &sess); err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	fmt.Printf("Connected: %s\n", color.CyanString(sess.AccountShort))

	headers := map[string]string{}
	if key != "" {
		headers["X-Idempotency-Key"] = key
	}
	var job remoteJob
	if err := c.do(ctx, http.MethodPost, "/api/v1/mints", headers, &job); err != nil {
		return err
	}
	fmt.Printf("Mint %s %s\n", job.RequestID, stateString(job.State))

	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()
	last := job.State
	for job.State != "confirmed" && job.State != "failed" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/mints/"+job.RequestID, nil, &job); err != nil {
			return err
		}
		if job.State != last {
			fmt.Printf("  %s %s\n", stateString(job.State), job.TxURL)
			last = job.State
		}
	}

	if job.State == "failed" {
		return fmt.Errorf("mint failed (%s): %s", job.Cause, job.Error)
	}
	color.Green("NFT minted successfully! Token #%s", job.TokenID)
	return nil
}

func (c *remoteClient) do(ctx context.Context, method, path string, headers map[string]string, out any) error {
	body := []byte{}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if method == http.MethodPost && c.secret != "" {
		apiauth.Sign(req, c.secret, body, time.Now())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.Unmarshal(data, out)
}

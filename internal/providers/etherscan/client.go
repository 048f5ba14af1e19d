// Package etherscan fetches gas-tracker data. A missing API key or any
// upstream failure degrades to a fixed mock payload annotated with a note,
// never an error the caller must handle.
package etherscan

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/httpx"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/providers"
)

const defaultBase = "https://api.etherscan.io/api"

const mockNote = "mock gas data: gas tracker key absent or upstream unavailable"

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	log     *zap.Logger
	now     func() time.Time

	// previous base fee sample, for the trend annotation.
	lastBaseFee float64
}

func New(httpClient *httpx.Client, baseURL, apiKey string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBase
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey, log: log, now: time.Now}
}

func (c *Client) Info() providers.Info {
	return providers.Info{
		Name:        "etherscan",
		Type:        "gas_tracker",
		RequiresKey: true,
		KeyEnvVar:   "COPILOT_GASTRACKER_API_KEY",
		MockWhenOff: true,
	}
}

type gasOracleResponse struct {
	Status string `json:"status"`
	Result struct {
		SafeGasPrice    string `json:"SafeGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
		FastGasPrice    string `json:"FastGasPrice"`
		SuggestBaseFee  string `json:"suggestBaseFee"`
	} `json:"result"`
}

// FetchGasReport returns the current gas report. The mock path is the
// designed fallback for a missing key or a failed upstream call.
func (c *Client) FetchGasReport(ctx context.Context) model.GasReport {
	if c.apiKey == "" {
		return c.mockReport()
	}

	vals := url.Values{}
	vals.Set("module", "gastracker")
	vals.Set("action", "gasoracle")
	vals.Set("apikey", c.apiKey)

	var resp gasOracleResponse
	if _, err := c.http.GetJSON(ctx, c.baseURL+"?"+vals.Encode(), nil, &resp); err != nil {
		c.log.Warn("gas tracker fetch failed, serving mock payload", zap.Error(err))
		return c.mockReport()
	}
	if resp.Status != "1" {
		c.log.Warn("gas tracker returned error status, serving mock payload")
		return c.mockReport()
	}

	safe := parseGwei(resp.Result.SafeGasPrice, 20)
	propose := parseGwei(resp.Result.ProposeGasPrice, 25)
	fast := parseGwei(resp.Result.FastGasPrice, 30)
	baseFee := parseGwei(resp.Result.SuggestBaseFee, 18)

	report := c.buildReport(safe, propose, fast, baseFee, "")
	return report
}

func (c *Client) buildReport(slow, standard, fast, baseFee float64, note string) model.GasReport {
	trend := "stable"
	if c.lastBaseFee > 0 {
		switch {
		case baseFee > c.lastBaseFee*1.02:
			trend = "rising"
		case baseFee < c.lastBaseFee*0.98:
			trend = "falling"
		}
	}
	c.lastBaseFee = baseFee

	instant := fast * 1.2
	return model.GasReport{
		Slow:       formatGwei(slow),
		Standard:   formatGwei(standard),
		Fast:       formatGwei(fast),
		Instant:    formatGwei(instant),
		BaseFee:    formatGwei(baseFee),
		Trend:      trend,
		LastUpdate: c.now().UTC(),
		SuggestedMaxFee: model.FeeSuggestion{
			Slow:     formatGwei(baseFee*2 + 1),
			Standard: formatGwei(baseFee*2 + 1.5),
			Fast:     formatGwei(baseFee*2 + 2),
		},
		SuggestedPriorityFee: model.FeeSuggestion{
			Slow:     formatGwei(1),
			Standard: formatGwei(1.5),
			Fast:     formatGwei(2),
		},
		Note: note,
	}
}

func (c *Client) mockReport() model.GasReport {
	return c.buildReport(20, 25, 30, 18, mockNote)
}

func parseGwei(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func formatGwei(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

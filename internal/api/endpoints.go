package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mkoval/exposure-monitor/internal/model"
)

// GetQuote fetches the latest quote for a ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (model.Quote, error) {
	query := url.Values{}
	query.Set("ticker", ticker)

	var resp quoteResponse
	if err := c.get(ctx, "/quotes", query, &resp); err != nil {
		return model.Quote{}, fmt.Errorf("get quote for %s: %w", ticker, err)
	}
	return resp.toModel(time.Now()), nil
}

// GetHoldings fetches the full holdings book.
func (c *Client) GetHoldings(ctx context.Context) ([]model.Holding, error) {
	var resp holdingsResponse
	if err := c.get(ctx, "/holdings", nil, &resp); err != nil {
		return nil, fmt.Errorf("get holdings: %w", err)
	}

	holdings := make([]model.Holding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		holdings = append(holdings, h.toModel())
	}
	return holdings, nil
}

// GetConstituents fetches the constituent weights of an ETF.
func (c *Client) GetConstituents(ctx context.Context, etf string) ([]model.ETFConstituent, error) {
	path := "/etfs/" + url.PathEscape(etf) + "/constituents"

	var resp constituentsResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get constituents for %s: %w", etf, err)
	}

	out := make([]model.ETFConstituent, 0, len(resp.Constituents))
	for _, rec := range resp.Constituents {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// GetSharesOutstanding fetches the primary and vendor shares
// outstanding figures for an issuer.
func (c *Client) GetSharesOutstanding(ctx context.Context, ticker string) (SharesOutstanding, error) {
	query := url.Values{}
	query.Set("ticker", ticker)

	var resp sharesOutstandingResponse
	if err := c.get(ctx, "/shares-outstanding", query, &resp); err != nil {
		return SharesOutstanding{}, fmt.Errorf("get shares outstanding for %s: %w", ticker, err)
	}
	return resp.toModel(), nil
}

// GetRegulatoryRules fetches disclosure rules, optionally filtered by
// jurisdiction.
func (c *Client) GetRegulatoryRules(ctx context.Context, jurisdiction string) ([]model.RegulatoryRule, error) {
	var query url.Values
	if jurisdiction != "" {
		query = url.Values{}
		query.Set("jurisdiction", jurisdiction)
	}

	var resp rulesResponse
	if err := c.get(ctx, "/regulatory/rules", query, &resp); err != nil {
		return nil, fmt.Errorf("get regulatory rules: %w", err)
	}

	rules := make([]model.RegulatoryRule, 0, len(resp.Rules))
	for _, r := range resp.Rules {
		rules = append(rules, r.toModel())
	}
	return rules, nil
}

package oanda

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rustyeddy/carry/broker"
)

type transactionPages struct {
	Count int      `json:"count"`
	Pages []string `json:"pages"`
}

type apiTransaction struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Time       string `json:"time"`
	Instrument string `json:"instrument"`
	Financing  string `json:"financing"`
}

type transactionRange struct {
	Transactions []apiTransaction `json:"transactions"`
}

// Transactions lists transactions of txType between two dates. The list
// endpoint only returns page URLs; each page's id range is fetched with
// idrange.
func (c *Client) Transactions(ctx context.Context, from, to, txType string) ([]broker.Transaction, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("pageSize", "100")
	if txType != "" {
		q.Set("type", txType)
	}

	var pages transactionPages
	if err := c.get(ctx, c.accountPath("/transactions"), q, &pages); err != nil {
		return nil, fmt.Errorf("transactions %s..%s: %w", from, to, err)
	}

	var out []broker.Transaction
	for _, page := range pages.Pages {
		lo, hi, err := pageRange(page)
		if err != nil {
			return nil, err
		}

		rq := url.Values{}
		rq.Set("from", lo)
		rq.Set("to", hi)
		if txType != "" {
			rq.Set("type", txType)
		}

		var tr transactionRange
		if err := c.get(ctx, c.accountPath("/transactions/idrange"), rq, &tr); err != nil {
			return nil, fmt.Errorf("transactions %s-%s: %w", lo, hi, err)
		}

		for _, t := range tr.Transactions {
			if txType != "" && t.Type != txType {
				continue
			}
			var p parser
			tx := broker.Transaction{
				ID:         t.ID,
				Type:       t.Type,
				Instrument: t.Instrument,
				Time:       p.stamp("time", t.Time),
				Financing:  p.num("financing", t.Financing),
			}
			if p.err != nil {
				return nil, fmt.Errorf("transaction %s: %w", t.ID, p.err)
			}
			out = append(out, tx)
		}
	}
	return out, nil
}

// pageRange reads the from/to transaction ids out of a page URL.
func pageRange(page string) (from, to string, err error) {
	u, err := url.Parse(page)
	if err != nil {
		return "", "", fmt.Errorf("transaction page %q: %w", page, err)
	}
	q := u.Query()
	from, to = q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		return "", "", fmt.Errorf("transaction page %q: missing id range", page)
	}
	return from, to, nil
}

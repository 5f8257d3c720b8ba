package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pavelanni/paperdash/internal/model"
)

// PaperAnalytics fetches the category counts for one paper.
func (c *Client) PaperAnalytics(ctx context.Context, paperID string) (*model.PaperAnalytics, error) {
	var pa model.PaperAnalytics
	if err := c.getJSON(ctx, "/analytics/paper/"+url.PathEscape(paperID), &pa); err != nil {
		return nil, fmt.Errorf("get analytics for paper %s: %w", paperID, err)
	}
	return &pa, nil
}

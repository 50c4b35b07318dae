package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"listing-service/internal/domain"
)

type categorySuggestionsResponse struct {
	CategorySuggestions []struct {
		Category struct {
			CategoryID   string `json:"categoryId"`
			CategoryName string `json:"categoryName"`
		} `json:"category"`
		LeafCategoryTreeNode   *bool             `json:"leafCategoryTreeNode,omitempty"`
		ChildCategoryTreeNodes []json.RawMessage `json:"childCategoryTreeNodes,omitempty"`
	} `json:"categorySuggestions"`
}

// CategorySuggestions returns ranked category candidates for a free-text query.
// Rank 0 is the marketplace's best match.
func (c *Client) CategorySuggestions(ctx context.Context, query string) ([]domain.CategoryCandidate, error) {
	path := fmt.Sprintf("/commerce/taxonomy/v1/category_tree/%s/get_category_suggestions?q=%s",
		url.PathEscape(c.opts.CategoryTreeID), url.QueryEscape(query))

	var resp categorySuggestionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	candidates := make([]domain.CategoryCandidate, 0, len(resp.CategorySuggestions))
	for i, s := range resp.CategorySuggestions {
		// Suggestions are leaves unless the node says otherwise.
		leaf := len(s.ChildCategoryTreeNodes) == 0
		if s.LeafCategoryTreeNode != nil {
			leaf = *s.LeafCategoryTreeNode
		}
		candidates = append(candidates, domain.CategoryCandidate{
			Category: domain.Category{
				ID:   s.Category.CategoryID,
				Name: s.Category.CategoryName,
				Leaf: leaf,
			},
			Rank: i,
		})
	}
	return candidates, nil
}

type itemAspectsResponse struct {
	Aspects []struct {
		LocalizedAspectName string `json:"localizedAspectName"`
		AspectConstraint    struct {
			AspectRequired bool   `json:"aspectRequired"`
			AspectUsage    string `json:"aspectUsage"`
		} `json:"aspectConstraint"`
	} `json:"aspects"`
}

// ItemAspects returns the aspects the marketplace declares for a category, in declared order.
func (c *Client) ItemAspects(ctx context.Context, categoryID string) ([]domain.AspectRequirement, error) {
	path := fmt.Sprintf("/commerce/taxonomy/v1/category_tree/%s/get_item_aspects_for_category?category_id=%s",
		url.PathEscape(c.opts.CategoryTreeID), url.QueryEscape(categoryID))

	var resp itemAspectsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	reqs := make([]domain.AspectRequirement, 0, len(resp.Aspects))
	for _, a := range resp.Aspects {
		if a.LocalizedAspectName == "" {
			continue
		}
		reqs = append(reqs, domain.AspectRequirement{
			CategoryID: categoryID,
			AspectName: a.LocalizedAspectName,
			Required:   a.AspectConstraint.AspectRequired,
		})
	}
	return reqs, nil
}

package moysklad

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ==================== 商品目录 ====================

// ProductPage is one page of the product listing.
type ProductPage = List[Product]

// ListProducts fetches a page of products with images, attributes and folder expanded.
func (c *Client) ListProducts(ctx context.Context, limit, offset int) (*ProductPage, error) {
	path := fmt.Sprintf("/entity/product?limit=%d&offset=%d&expand=images,attributes,productFolder", limit, offset)
	var page ProductPage
	if err := c.Request(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	path := "/entity/product/" + url.PathEscape(id) + "?expand=images,attributes,productFolder"
	if err := c.Request(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListVariants fetches the modifications of a product.
func (c *Client) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	q := url.Values{}
	q.Set("filter", "productid="+productID)
	q.Set("expand", "characteristics")
	var list List[Variant]
	if err := c.Request(ctx, http.MethodGet, "/entity/variant?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// GetVariant fetches one modification.
func (c *Client) GetVariant(ctx context.Context, id string) (*Variant, error) {
	var v Variant
	if err := c.Request(ctx, http.MethodGet, "/entity/variant/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListProductFolders fetches all product folders, following pages of 100.
func (c *Client) ListProductFolders(ctx context.Context) ([]ProductFolder, error) {
	var all []ProductFolder
	const limit = 100
	for offset := 0; ; offset += limit {
		var page List[ProductFolder]
		path := fmt.Sprintf("/entity/productfolder?limit=%d&offset=%d", limit, offset)
		if err := c.Request(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)
		if len(page.Rows) < limit || offset+limit >= page.Meta.Size {
			return all, nil
		}
	}
}

// ListImages follows an image collection href.
func (c *Client) ListImages(ctx context.Context, collectionHref string) ([]Image, error) {
	path, err := c.relative(collectionHref)
	if err != nil {
		return nil, err
	}
	var list List[Image]
	if err := c.Request(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// CreateSimpleProduct creates a product with a single sale price named
// "Цена продажи". priceMinor is in minor currency units.
func (c *Client) CreateSimpleProduct(ctx context.Context, name string, priceMinor int64, sku, description string) (*Product, error) {
	payload := NewProduct{
		Name:        name,
		Code:        sku,
		Description: description,
		SalePrices: []SalePrice{{
			Value:     float64(priceMinor),
			PriceType: &PriceType{Name: DefaultSalePriceName},
		}},
	}
	return c.CreateProduct(ctx, payload)
}

// CreateProduct posts a product payload.
func (c *Client) CreateProduct(ctx context.Context, payload NewProduct) (*Product, error) {
	var p Product
	if err := c.Request(ctx, http.MethodPost, "/entity/product", payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultSalePriceName is the name of the default sale price type.
const DefaultSalePriceName = "Цена продажи"

// relative strips the base URL from an absolute href.
func (c *Client) relative(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if !u.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	path := u.Path
	if len(path) >= len(base.Path) && path[:len(base.Path)] == base.Path {
		path = path[len(base.Path):]
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, nil
}

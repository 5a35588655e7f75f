package moysklad

import (
	"context"
	"net/http"
	"net/url"
)

// ==================== 自定义属性 ====================

// ListAttributes returns the custom attribute definitions of an entity type.
func (c *Client) ListAttributes(ctx context.Context, entityType string) ([]AttributeMetadata, error) {
	var list List[AttributeMetadata]
	path := "/entity/" + url.PathEscape(entityType) + "/metadata/attributes"
	if err := c.Request(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// EnsureAttribute returns the attribute named name, creating it with the given
// type when absent.
func (c *Client) EnsureAttribute(ctx context.Context, entityType, name, typ string) (*AttributeMetadata, error) {
	existing, err := c.ListAttributes(ctx, entityType)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Name == name {
			return &existing[i], nil
		}
	}

	var out AttributeMetadata
	path := "/entity/" + url.PathEscape(entityType) + "/metadata/attributes"
	if err := c.Request(ctx, http.MethodPost, path, AttributeMetadata{Name: name, Type: typ}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttributeRef builds the meta reference used when setting an attribute value.
func (c *Client) AttributeRef(entityType, attributeID string) *Meta {
	return &Meta{
		Href:      Href(c.cfg.BaseURL, "/entity/"+entityType+"/metadata/attributes/"+attributeID),
		Type:      "attributemetadata",
		MediaType: "application/json",
	}
}

// CanReadOrderMetadata probes access to order metadata. It returns false
// without error when the account lacks permission.
func (c *Client) CanReadOrderMetadata(ctx context.Context) (bool, error) {
	err := c.Request(ctx, http.MethodGet, "/entity/customerorder/metadata", nil, nil)
	if err == nil {
		return true, nil
	}
	if IsAccessDenied(err) {
		return false, nil
	}
	return false, err
}

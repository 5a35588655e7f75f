package moysklad

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ==================== 参考数据 ====================

// Stores lists the warehouses.
func (c *Client) Stores(ctx context.Context) ([]Store, error) {
	var list List[Store]
	if err := c.Request(ctx, http.MethodGet, "/entity/store", nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// Organizations lists the legal entities.
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var list List[Organization]
	if err := c.Request(ctx, http.MethodGet, "/entity/organization", nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// PriceTypes lists the price types configured in company settings.
func (c *Client) PriceTypes(ctx context.Context) ([]PriceType, error) {
	var list []PriceType
	if err := c.Request(ctx, http.MethodGet, "/context/companysettings/pricetype", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CustomerGroups lists counterparty groups through the group guard. The
// response may carry the list under "rows" or "groups". Failures and an open
// latch both yield an empty list.
func (c *Client) CustomerGroups(ctx context.Context) []Group {
	var raw []byte
	ok, err := c.guarded(ctx, c.groupGuard, func(ctx context.Context) error {
		var err error
		raw, err = c.do(ctx, http.MethodGet, "/entity/group", nil)
		return err
	})
	if err != nil {
		c.log.Warn("[MoySklad] customer groups unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var body struct {
		Rows   []Group `json:"rows"`
		Groups []Group `json:"groups"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		c.log.Warn("[MoySklad] customer groups decode failed", zap.Error(err))
		return nil
	}
	if len(body.Rows) > 0 {
		return body.Rows
	}
	return body.Groups
}

// TestConnection performs a cheap authenticated call.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.Request(ctx, http.MethodGet, "/entity/organization?limit=1", nil, nil)
}

package moysklad

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ==================== 客户 (Counterparty) ====================

// FindOrCreateCounterparty looks the customer up by phone, then by email, and
// creates it when no match exists.
func (c *Client) FindOrCreateCounterparty(ctx context.Context, cp Counterparty) (*Counterparty, error) {
	var filter string
	switch {
	case cp.Phone != "":
		filter = "phone=" + cp.Phone
	case cp.Email != "":
		filter = "email=" + cp.Email
	default:
		return nil, ErrCustomerData
	}

	q := url.Values{}
	q.Set("filter", filter)
	var found List[Counterparty]
	if err := c.Request(ctx, http.MethodGet, "/entity/counterparty?"+q.Encode(), nil, &found); err != nil {
		return nil, err
	}
	if len(found.Rows) > 0 {
		return &found.Rows[0], nil
	}

	var created Counterparty
	if err := c.Request(ctx, http.MethodPost, "/entity/counterparty", cp, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetCounterparty fetches a customer.
func (c *Client) GetCounterparty(ctx context.Context, id string) (*Counterparty, error) {
	var cp Counterparty
	if err := c.Request(ctx, http.MethodGet, "/entity/counterparty/"+url.PathEscape(id), nil, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// UpdateCounterparty sends a (possibly partial) customer update.
func (c *Client) UpdateCounterparty(ctx context.Context, id string, cp Counterparty) (*Counterparty, error) {
	var out Counterparty
	if err := c.Request(ctx, http.MethodPut, "/entity/counterparty/"+url.PathEscape(id), cp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==================== 订单 (CustomerOrder) ====================

// CreateOrder posts a new order; agent and at least one position are required.
func (c *Client) CreateOrder(ctx context.Context, order CustomerOrder) (*CustomerOrder, error) {
	if order.Agent == nil || len(order.Positions) == 0 {
		return nil, ErrInvalidOrder
	}
	var out CustomerOrder
	if err := c.Request(ctx, http.MethodPost, "/entity/customerorder", order, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrder sends an order update. Only non-empty fields are transmitted,
// so a CustomerOrder carrying just State is a partial status update.
func (c *Client) UpdateOrder(ctx context.Context, id string, order CustomerOrder) (*CustomerOrder, error) {
	var out CustomerOrder
	if err := c.Request(ctx, http.MethodPut, "/entity/customerorder/"+url.PathEscape(id), order, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches an order with positions, agent and state expanded.
func (c *Client) GetOrder(ctx context.Context, id string) (*CustomerOrder, error) {
	raw, err := c.do(ctx, http.MethodGet, "/entity/customerorder/"+url.PathEscape(id)+"?expand=positions,positions.assortment,agent,state", nil)
	if err != nil {
		return nil, err
	}
	var read orderRead
	if err := json.Unmarshal(raw, &read); err != nil {
		return nil, err
	}
	order := read.CustomerOrder
	if len(read.Positions) > 0 {
		var expanded List[Position]
		if err := json.Unmarshal(read.Positions, &expanded); err == nil {
			order.Positions = expanded.Rows
		}
	}
	return &order, nil
}

// FindOrderByExternalCode returns the order whose externalCode matches, or nil.
func (c *Client) FindOrderByExternalCode(ctx context.Context, code string) (*CustomerOrder, error) {
	q := url.Values{}
	q.Set("filter", "externalCode="+code)
	var list List[CustomerOrder]
	if err := c.Request(ctx, http.MethodGet, "/entity/customerorder?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	if len(list.Rows) == 0 {
		return nil, nil
	}
	return &list.Rows[0], nil
}

// OrderStates lists the configured order statuses.
func (c *Client) OrderStates(ctx context.Context) ([]State, error) {
	var meta struct {
		States []State `json:"states"`
	}
	if err := c.Request(ctx, http.MethodGet, "/entity/customerorder/metadata", nil, &meta); err != nil {
		return nil, err
	}
	return meta.States, nil
}

// StateRef builds the reference to an order status.
func (c *Client) StateRef(stateID string) *MetaRef {
	return NewRef(c.cfg.BaseURL, "/entity/customerorder/metadata/states/"+stateID, "state")
}

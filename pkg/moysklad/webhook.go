package moysklad

import (
	"context"
	"net/http"
	"net/url"
)

// ==================== Webhook 订阅 ====================

// ListWebhooks returns the registered webhooks.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var list List[Webhook]
	if err := c.Request(ctx, http.MethodGet, "/entity/webhook", nil, &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

// RegisterWebhook subscribes callbackURL to entityType/action. A permission
// failure is reported as ErrWebhookPermission.
func (c *Client) RegisterWebhook(ctx context.Context, entityType, action, callbackURL string) (*Webhook, error) {
	payload := Webhook{
		EntityType: entityType,
		Action:     action,
		URL:        callbackURL,
		Enabled:    true,
	}
	var out Webhook
	if err := c.Request(ctx, http.MethodPost, "/entity/webhook", payload, &out); err != nil {
		if IsAccessDenied(err) {
			return nil, ErrWebhookPermission
		}
		return nil, err
	}
	return &out, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.Request(ctx, http.MethodDelete, "/entity/webhook/"+url.PathEscape(id), nil, nil)
}

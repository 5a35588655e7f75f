package moysklad

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ==================== 库存报表 ====================

// StockBatch fetches the global stock report once and keeps the rows whose
// assortment id is one of ids and, when warehouseID is set, whose store
// matches it. A latched guard yields an empty slice and no error.
func (c *Client) StockBatch(ctx context.Context, ids []string, warehouseID string) ([]StockRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var report List[StockRow]
	ok, err := c.guarded(ctx, c.stockGuard, func(ctx context.Context) error {
		report = List[StockRow]{}
		return c.Request(ctx, http.MethodGet, "/report/stock/all", nil, &report)
	})
	if err != nil || !ok {
		return nil, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	rows := FilterStockRows(report.Rows, want, warehouseID)
	c.log.Info("[MoySklad] stock rows filtered",
		zap.Int("matched", len(rows)),
		zap.Int("requested", len(ids)),
		zap.Int("report_rows", len(report.Rows)),
	)
	return rows, nil
}

// ProductStock fetches stock rows for a single product or variant.
func (c *Client) ProductStock(ctx context.Context, id, warehouseID string) ([]StockRow, error) {
	q := url.Values{}
	q.Set("filter", "assortment="+id)
	if warehouseID != "" {
		q.Set("stockstore", Href(c.cfg.BaseURL, "/entity/store/"+warehouseID))
	}

	var report List[StockRow]
	ok, err := c.guarded(ctx, c.singleStockGuard, func(ctx context.Context) error {
		report = List[StockRow]{}
		return c.Request(ctx, http.MethodGet, "/report/stock/all?"+q.Encode(), nil, &report)
	})
	if err != nil || !ok {
		return nil, err
	}
	// the store filter was applied remotely
	return FilterStockRows(report.Rows, map[string]struct{}{id: {}}, ""), nil
}

// FilterStockRows keeps rows whose assortment id is in want and whose store
// reference contains warehouseID (when set).
func FilterStockRows(rows []StockRow, want map[string]struct{}, warehouseID string) []StockRow {
	var out []StockRow
	for _, row := range rows {
		_, id, ok := ParseRef(row.AssortmentHref())
		if !ok {
			continue
		}
		if _, hit := want[id]; !hit {
			continue
		}
		if warehouseID != "" {
			if row.StockStore == nil || !strings.Contains(row.StockStore.Meta.Href, warehouseID) {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

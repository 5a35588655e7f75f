package moysklad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		wantType string
		wantID   string
		wantOK   bool
	}{
		{"商品", "https://api.moysklad.ru/api/remap/1.2/entity/product/abc-1", "product", "abc-1", true},
		{"变体带查询串", "https://api.moysklad.ru/api/remap/1.2/entity/variant/v-9?expand=product", "variant", "v-9", true},
		{"尾部斜杠", "https://host/entity/productfolder/f1/", "productfolder", "f1", true},
		{"订单状态", "https://host/entity/customerorder/metadata/states/s-1", "states", "s-1", true},
		{"空", "", "", "", false},
		{"单段", "abc", "", "", false},
		{"只有斜杠", "/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, id, ok := ParseRef(tt.href)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestRefID(t *testing.T) {
	href := "https://host/api/remap/1.2/entity/product/p-1/images?limit=10"
	assert.Equal(t, "p-1", RefID(href, TypeProduct))
	assert.Equal(t, "", RefID(href, TypeVariant))
}

func TestParseRef_ExactIDMatch(t *testing.T) {
	// "abc" must not match a row for "abcd"
	_, id, ok := ParseRef("https://host/entity/product/abcd")
	assert.True(t, ok)
	assert.NotEqual(t, "abc", id)
}

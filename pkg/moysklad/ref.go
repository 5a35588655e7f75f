package moysklad

import "strings"

// ==================== 引用解析 ====================

// Entity type segments as they appear in meta.href.
const (
	TypeProduct       = "product"
	TypeVariant       = "variant"
	TypeProductFolder = "productfolder"
	TypeCustomerOrder = "customerorder"
	TypeCounterparty  = "counterparty"
	TypeStore         = "store"
	TypeOrganization  = "organization"
	TypeState         = "states"
	TypeGroup         = "group"
)

// ParseRef extracts the trailing {entityType}/{id} pair from a reference URL.
// Query strings and trailing slashes are ignored. ok is false when the href
// has fewer than two path segments.
func ParseRef(href string) (entityType, id string, ok bool) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	last := strings.LastIndex(href, "/")
	if last <= 0 || last == len(href)-1 {
		return "", "", false
	}
	id = href[last+1:]
	rest := href[:last]
	prev := strings.LastIndex(rest, "/")
	entityType = rest[prev+1:]
	if entityType == "" {
		return "", "", false
	}
	return entityType, id, true
}

// RefID returns the id following the given entity segment anywhere in href,
// e.g. RefID(".../productfolder/abc", "productfolder") == "abc". It returns
// "" when the segment is absent.
func RefID(href, entityType string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	parts := strings.Split(href, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == entityType && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

// Href builds an absolute reference for the given path under base.
func Href(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

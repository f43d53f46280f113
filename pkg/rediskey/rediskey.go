package rediskey

import "fmt"

const (
	ActiveCasePrefix    = "activecase"
	ActiveCaseGenPrefix = "activecase:gen"

	// AnyVariant is the hash field used when the storefront asks without a variant.
	AnyVariant = "_"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildActiveCaseKey returns "activecase:{productID}"
func BuildActiveCaseKey(productID string) string {
	return NamespaceKey(ActiveCasePrefix, productID)
}

// BuildActiveCaseGenKey returns "activecase:gen:{productID}", the counter
// bumped on every invalidation of the product's hash.
func BuildActiveCaseGenKey(productID string) string {
	return NamespaceKey(ActiveCaseGenPrefix, productID)
}

// ActiveCaseField returns the hash field for a variant, or AnyVariant.
func ActiveCaseField(variantID string) string {
	if variantID == "" {
		return AnyVariant
	}
	return variantID
}

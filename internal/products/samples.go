package products

import (
	"fmt"
	"time"

	"github.com/pi-trace/registry/internal/domain/product"
)

// sampleProducts returns the two illustrative records seeded for a first-time
// session whose cache is empty and whose remote store is unreachable.
func sampleProducts(ownerID string, now time.Time) []product.Product {
	return []product.Product{
		{
			ID:          fmt.Sprintf("prod_%d", now.UnixMilli()),
			Name:        "Organic Coffee Beans",
			Category:    product.CategoryFood,
			Description: "Premium organic coffee from Indonesia",
			Quantity:    50,
			Unit:        "kg",
			Price:       2.5,
			Origin:      product.Origin{Country: "Indonesia", City: "Bali"},
			Hash:        "COFFEE_" + product.GenerateHash(product.CategoryFood)[4:],
			UploadedAt:  now,
			OwnerID:     ownerID,
		},
		{
			ID:          fmt.Sprintf("prod_%d", now.UnixMilli()+1),
			Name:        "Handcrafted Batik Scarf",
			Category:    product.CategoryClothing,
			Description: "Traditional Indonesian batik design",
			Quantity:    10,
			Unit:        "pcs",
			Price:       5.0,
			Origin:      product.Origin{Country: "Indonesia", City: "Yogyakarta"},
			Hash:        "BATIK_" + product.GenerateHash(product.CategoryClothing)[4:],
			UploadedAt:  now.Add(-24 * time.Hour),
			OwnerID:     ownerID,
		},
	}
}

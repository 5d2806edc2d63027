package product

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftValidate(t *testing.T) {
	valid := Draft{Name: "Coffee", Category: CategoryFood, Quantity: 5, Price: 2.5}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Draft)
		wantErr error
	}{
		{"empty name", func(d *Draft) { d.Name = "" }, ErrNameRequired},
		{"whitespace name", func(d *Draft) { d.Name = "   " }, ErrNameRequired},
		{"missing category", func(d *Draft) { d.Category = "" }, ErrCategoryRequired},
		{"unknown category", func(d *Draft) { d.Category = "furniture" }, ErrCategoryRequired},
		{"negative quantity", func(d *Draft) { d.Quantity = -1 }, ErrInvalidQuantity},
		{"negative price", func(d *Draft) { d.Price = -0.01 }, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), tt.wantErr)
		})
	}

	t.Run("zero quantity and price allowed", func(t *testing.T) {
		d := valid
		d.Quantity = 0
		d.Price = 0
		assert.NoError(t, d.Validate())
	})
}

func TestDraftNormalize(t *testing.T) {
	d := Draft{Name: "  Coffee  ", Category: CategoryFood}
	out := d.Normalize()

	assert.Equal(t, "Coffee", out.Name)
	assert.Equal(t, "No description provided", out.Description)
	assert.Equal(t, "pcs", out.Unit)

	// Provided values survive.
	d = Draft{Name: "Scarf", Category: CategoryClothing, Description: "silk", Unit: "kg"}
	out = d.Normalize()
	assert.Equal(t, "silk", out.Description)
	assert.Equal(t, "kg", out.Unit)
}

func TestGenerateHash(t *testing.T) {
	for _, category := range []Category{CategoryElectronics, CategoryClothing, CategoryFood, CategoryOther} {
		h := GenerateHash(category)
		parts := strings.SplitN(h, "_", 2)
		require.Len(t, parts, 2, "hash %q", h)

		wantPrefix := strings.ToUpper(string(category))
		if len(wantPrefix) > 3 {
			wantPrefix = wantPrefix[:3]
		}
		assert.Equal(t, wantPrefix, parts[0])
		assert.Len(t, parts[1], 9)
		for _, r := range parts[1] {
			assert.True(t, (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z'), "char %q in %q", r, h)
		}
	}
}

func TestCategoryDisplayName(t *testing.T) {
	assert.Equal(t, "Food & Beverages", CategoryFood.DisplayName())
	assert.Equal(t, "Other", Category("unknown").DisplayName())
}

func TestOriginDisplay(t *testing.T) {
	assert.Equal(t, "Indonesia, Bali", Origin{Country: "Indonesia", City: "Bali"}.Display())
	assert.Equal(t, "Indonesia", Origin{Country: "Indonesia"}.Display())
}

func TestProductMatches(t *testing.T) {
	p := Product{
		Name:        "Organic Coffee Beans",
		Description: "Premium arabica",
		Hash:        "FOO_123ABC456",
		Origin:      Origin{Country: "Indonesia", City: "Bali"},
	}

	assert.True(t, p.Matches(""))
	assert.True(t, p.Matches("  "))
	assert.True(t, p.Matches("coffee"))
	assert.True(t, p.Matches("ARABICA"))
	assert.True(t, p.Matches("foo_123"))
	assert.True(t, p.Matches("bali"))
	assert.False(t, p.Matches("tea"))
}

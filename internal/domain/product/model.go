// Package product defines the registered product record and its validation
// rules.
package product

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Category classifies a product. Wire values match the remote store.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryFood        Category = "food"
	CategoryOther       Category = "other"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryFood, CategoryOther:
		return true
	}
	return false
}

// DisplayName returns the human-readable category label.
func (c Category) DisplayName() string {
	switch c {
	case CategoryElectronics:
		return "Electronics"
	case CategoryClothing:
		return "Clothing"
	case CategoryFood:
		return "Food & Beverages"
	default:
		return "Other"
	}
}

// Origin records where a product comes from.
type Origin struct {
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
}

// Display formats the origin as "Country, City", omitting the city when empty.
func (o Origin) Display() string {
	if o.City == "" {
		return o.Country
	}
	return o.Country + ", " + o.City
}

// Product is a registered supply-chain record. ID and Hash are unique within
// a store; ID is assigned at creation and never reassigned.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Unit        string    `json:"unit"`
	Price       float64   `json:"price"`
	Origin      Origin    `json:"origin"`
	Hash        string    `json:"hash"`
	UploadedAt  time.Time `json:"uploadDate"`
	OwnerID     string    `json:"owner"`
}

// Validation errors surfaced to the caller before any request is sent.
var (
	ErrNameRequired     = errors.New("product name is required")
	ErrCategoryRequired = errors.New("product category is required")
	ErrInvalidQuantity  = errors.New("product quantity must not be negative")
	ErrInvalidPrice     = errors.New("product price must not be negative")
)

// Draft is the caller-supplied input for a new product.
type Draft struct {
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Quantity    int      `json:"quantity"`
	Unit        string   `json:"unit"`
	Price       float64  `json:"price"`
	Origin      Origin   `json:"origin"`
}

// Validate checks a draft without mutating it.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if d.Category == "" || !d.Category.Valid() {
		return ErrCategoryRequired
	}
	if d.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if d.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Normalize fills draft defaults the way submissions are normalized before
// they are sent: a placeholder description and a default unit.
func (d Draft) Normalize() Draft {
	out := d
	out.Name = strings.TrimSpace(out.Name)
	out.Description = strings.TrimSpace(out.Description)
	if out.Description == "" {
		out.Description = "No description provided"
	}
	if out.Unit == "" {
		out.Unit = "pcs"
	}
	return out
}

const hashRandomLen = 9

var hashAlphabet = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")

// GenerateHash produces a client-side provenance hash of the form
// <PREFIX>_<9 base36 chars>, where the prefix is the first three letters of
// the category, uppercased.
func GenerateHash(category Category) string {
	prefix := strings.ToUpper(string(category))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	b := make([]byte, hashRandomLen)
	for i := range b {
		b[i] = hashAlphabet[rand.Intn(len(hashAlphabet))]
	}
	return fmt.Sprintf("%s_%s", prefix, b)
}

// Matches reports whether the product matches a case-insensitive substring
// search over name, description, hash and formatted origin.
func (p Product) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{p.Name, p.Description, p.Hash, p.Origin.Display()} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

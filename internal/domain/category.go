package domain

import "time"

// Category groups products. Deleting a category deletes its products.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryRef is the compact category embedded in product views.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

package domain

import "time"

// Wishlist is a user's set of favorited products, at most one per category.
// It is created lazily on the first add.
type Wishlist struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Products  []Product `json:"products"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// EmptyWishlist is what a user without a wishlist row sees.
func EmptyWishlist(userID string) *Wishlist {
	return &Wishlist{UserID: userID, Products: []Product{}}
}

// WishlistEntry is one membership row.
type WishlistEntry struct {
	WishlistID string    `json:"wishlist_id"`
	ProductID  string    `json:"product_id"`
	AddedAt    time.Time `json:"added_at"`
}

// AddVerdict is the tagged outcome of evaluating an add request.
type AddVerdict int

const (
	AddAccepted AddVerdict = iota
	AddMissingProductID
	AddUnknownProduct
	AddCategoryTaken
)

func (v AddVerdict) String() string {
	switch v {
	case AddAccepted:
		return "accepted"
	case AddMissingProductID:
		return "missing_product_id"
	case AddUnknownProduct:
		return "unknown_product"
	case AddCategoryTaken:
		return "category_taken"
	default:
		return "unknown"
	}
}

// AddCandidate is the state an add request is judged on. Product is nil when
// the id did not resolve. Members is the current wishlist content.
type AddCandidate struct {
	ProductID string
	Product   *Product
	Members   []Product
}

// AddCheck inspects a candidate and returns AddAccepted to let it through.
type AddCheck func(c *AddCandidate) AddVerdict

// AddPipeline is the ordered list of checks an add must pass.
var AddPipeline = []AddCheck{
	RequireProductID,
	RequireKnownProduct,
	RequireFreeCategory,
}

// EvaluateAdd runs checks in order and returns the first rejection.
func EvaluateAdd(c *AddCandidate, checks []AddCheck) AddVerdict {
	for _, check := range checks {
		if v := check(c); v != AddAccepted {
			return v
		}
	}
	return AddAccepted
}

// RequireProductID rejects a blank product id.
func RequireProductID(c *AddCandidate) AddVerdict {
	if c.ProductID == "" {
		return AddMissingProductID
	}
	return AddAccepted
}

// RequireKnownProduct rejects ids that did not resolve to a product.
func RequireKnownProduct(c *AddCandidate) AddVerdict {
	if c.Product == nil {
		return AddUnknownProduct
	}
	return AddAccepted
}

// RequireFreeCategory rejects a product whose category already has a
// representative in the wishlist. Re-adding a member is rejected the same way.
func RequireFreeCategory(c *AddCandidate) AddVerdict {
	for _, m := range c.Members {
		if m.CategoryID == c.Product.CategoryID {
			return AddCategoryTaken
		}
	}
	return AddAccepted
}

// NormalizeProducts keeps, for every category, the first product in iteration
// order and returns the kept and dropped products. Applying it to its own
// output drops nothing.
func NormalizeProducts(products []Product) (kept, dropped []Product) {
	seen := make(map[string]struct{}, len(products))
	kept = make([]Product, 0, len(products))
	for _, p := range products {
		if _, dup := seen[p.CategoryID]; dup {
			dropped = append(dropped, p)
			continue
		}
		seen[p.CategoryID] = struct{}{}
		kept = append(kept, p)
	}
	return kept, dropped
}

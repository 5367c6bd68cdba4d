package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/buymeagift/giftlist/internal/domain"
)

// WishlistMetrics counts wishlist outcomes.
type WishlistMetrics struct {
	adds    *prometheus.CounterVec
	removed prometheus.Counter
}

// NewWishlistMetrics creates the wishlist collectors and registers them with reg.
func NewWishlistMetrics(reg prometheus.Registerer) *WishlistMetrics {
	m := &WishlistMetrics{
		adds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "giftlist_wishlist_add_total",
			Help: "Wishlist add attempts by verdict",
		}, []string{"verdict"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftlist_wishlist_normalized_products_total",
			Help: "Products removed from wishlists by normalization",
		}),
	}
	reg.MustRegister(m.adds, m.removed)
	return m
}

func (m *WishlistMetrics) observeAdd(v domain.AddVerdict) {
	if m == nil {
		return
	}
	m.adds.WithLabelValues(v.String()).Inc()
}

func (m *WishlistMetrics) observeNormalized(n int) {
	if m == nil {
		return
	}
	m.removed.Add(float64(n))
}

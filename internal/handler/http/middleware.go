package http

import (
	"net/http"
	"strings"

	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/logger"
	"github.com/buymeagift/giftlist/pkg/middleware"
)

// ContentTypeJSON rejects write requests that declare a non-JSON body.
// Requests without a Content-Type header pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "UNSUPPORTED_MEDIA_TYPE",
						Message:   "Content-Type must be application/json",
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tokenValidator bridges the auth middleware to the access token check.
func tokenValidator(svc AuthService) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := svc.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.UserID, Email: claims.Email}, nil
	}
}

package model

import "time"

// AccountKind tags the two account populations of the marketplace. It is
// carried alongside the account identifier everywhere a flow needs to pick
// the right lookup, instead of duplicated user/seller branches.
type AccountKind string

const (
	KindUser   AccountKind = "user"
	KindSeller AccountKind = "seller"
)

// Valid reports whether k names a known account kind.
func (k AccountKind) Valid() bool {
	return k == KindUser || k == KindSeller
}

// Account is the datastore view of a registered user or seller. The auth
// flows validate preconditions and signal the caller to create or update it;
// they never own its lifecycle.
type Account struct {
	ID           string      `json:"id"`
	Kind         AccountKind `json:"kind"`
	Bucket       int         `json:"-"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`

	// Seller-only attributes
	PhoneNumber string `json:"phone_number,omitempty"`
	Country     string `json:"country,omitempty"`
	ShopID      string `json:"shop_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips credential material for API responses.
func (a *Account) Public() map[string]any {
	out := map[string]any{
		"id":    a.ID,
		"name":  a.Name,
		"email": a.Email,
	}
	if a.Kind == KindSeller {
		if a.PhoneNumber != "" {
			out["phone_number"] = a.PhoneNumber
		}
		if a.Country != "" {
			out["country"] = a.Country
		}
	}
	return out
}

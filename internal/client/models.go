package client

import "time"

// Client is a debt-settlement client captured by the intake form.
type Client struct {
	ID         string         `json:"id" bson:"_id"`
	Name       string         `json:"name" bson:"name"`
	NIK        string         `json:"nik,omitempty" bson:"nik,omitempty"`
	Phone      string         `json:"phone,omitempty" bson:"phone,omitempty"`
	Email      string         `json:"email,omitempty" bson:"email,omitempty"`
	Address    string         `json:"address,omitempty" bson:"address,omitempty"`
	Occupation string         `json:"occupation,omitempty" bson:"occupation,omitempty"`
	Creditors  []CreditorDebt `json:"creditors" bson:"creditors"`
	Notes      string         `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedBy  string         `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// CreditorDebt is one outstanding facility a client owes.
type CreditorDebt struct {
	Creditor    string `json:"creditor" bson:"creditor" validate:"required"`
	Product     string `json:"product,omitempty" bson:"product,omitempty"`
	Outstanding int64  `json:"outstanding" bson:"outstanding" validate:"gt=0"`
}

// TotalOutstanding sums the outstanding amounts over all creditors.
func (c *Client) TotalOutstanding() int64 {
	var total int64
	for _, d := range c.Creditors {
		total += d.Outstanding
	}
	return total
}

// Filter narrows List results. Search matches name or phone substrings.
type Filter struct {
	Search string
	Limit  int
	Offset int
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Name       *string         `json:"name,omitempty"`
	NIK        *string         `json:"nik,omitempty"`
	Phone      *string         `json:"phone,omitempty"`
	Email      *string         `json:"email,omitempty"`
	Address    *string         `json:"address,omitempty"`
	Occupation *string         `json:"occupation,omitempty"`
	Creditors  *[]CreditorDebt `json:"creditors,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
}

// Package statements produces the client statement letters (surat pernyataan)
// and renders them to HTML.
package statements

import "time"

// Statement kinds. The kind selects the closing paragraph of the letter.
const (
	KindSettlement      = "keringanan"
	KindPowerOfAttorney = "kuasa"
	KindGeneral         = "umum"
)

// Statement is one numbered letter for a client. Body is markdown.
type Statement struct {
	ID        string    `json:"id" bson:"_id"`
	ClientID  string    `json:"clientId" bson:"clientId"`
	Number    string    `json:"number" bson:"number"`
	Kind      string    `json:"kind" bson:"kind"`
	Place     string    `json:"place" bson:"place"`
	Date      time.Time `json:"date" bson:"date"`
	Body      string    `json:"body" bson:"body"`
	HTMLKey   string    `json:"htmlKey,omitempty" bson:"htmlKey,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// CreateInput asks for a new statement generated from a client record.
type CreateInput struct {
	ClientID string     `json:"clientId" binding:"required"`
	Kind     string     `json:"kind"`
	Place    string     `json:"place"`
	Date     *time.Time `json:"date"`
}

// Rendered is a statement with its HTML, either inline or behind a presigned URL.
type Rendered struct {
	Statement *Statement `json:"statement"`
	HTML      string     `json:"html,omitempty"`
	URL       string     `json:"url,omitempty"`
}

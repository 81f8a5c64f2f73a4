package model

// PageText is the plain text of one document page. Page numbers start at 1.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

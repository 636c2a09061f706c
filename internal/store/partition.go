package store

import (
	"fmt"
	"strings"
)

// Partition is the (company, user) scope within which one participant's
// messages and embeddings live. It replaces the original's
// string-concatenated document paths so malformed scopes fail loudly at
// the store boundary instead of silently writing to the wrong place.
type Partition struct {
	CompanyID string
	UserID    string
}

func NewPartition(companyID, userID string) (Partition, error) {
	p := Partition{CompanyID: companyID, UserID: userID}
	if err := p.Validate(); err != nil {
		return Partition{}, err
	}
	return p, nil
}

func (p Partition) Validate() error {
	if p.CompanyID == "" || p.UserID == "" {
		return fmt.Errorf("partition requires both company id and user id, got %q/%q", p.CompanyID, p.UserID)
	}
	if strings.ContainsAny(p.CompanyID, "/\x00") || strings.ContainsAny(p.UserID, "/\x00") {
		return fmt.Errorf("partition components must not contain path separators: %q/%q", p.CompanyID, p.UserID)
	}
	return nil
}

func (p Partition) String() string {
	return "companies/" + p.CompanyID + "/users/" + p.UserID
}

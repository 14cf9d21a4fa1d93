package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// ElementModel describes one interactive or structural element found by
// the form analyzer on a loaded page.
type ElementModel struct {
	ElementID   string            `json:"element_id"`
	Tag         string            `json:"tag"`
	Selector    string            `json:"selector"`
	Role        string            `json:"role,omitempty"`
	Text        string            `json:"text,omitempty"`
	Interactive bool              `json:"interactive"`
	ElementType string            `json:"element_type,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ElementID derives element_id as a hash of "selector:index", so two
// elements sharing a selector on the same page still get distinct ids.
func ElementID(selector string, index int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", selector, index)))
	return hex.EncodeToString(sum[:])[:12]
}

// NewElementModel builds an ElementModel, deriving ElementID from selector and index.
func NewElementModel(index int, tag, selector string) *ElementModel {
	return &ElementModel{
		ElementID: ElementID(selector, index),
		Tag:       tag,
		Selector:  selector,
	}
}

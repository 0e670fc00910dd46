package wampShared

import "github.com/rs/xid"

// NewID returns a globally unique, sortable identifier
func NewID() string {
	return xid.New().String()
}

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AssetID is the composite identifier for a deliverable asset. Its string
// form customer/space/name is canonical and doubles as cache key, lock key
// and storage-path prefix.
type AssetID struct {
	Customer int
	Space    int
	Name     string
}

func (id AssetID) String() string {
	return fmt.Sprintf("%d/%d/%s", id.Customer, id.Space, id.Name)
}

// ParseAssetID parses the canonical customer/space/name form
func ParseAssetID(s string) (AssetID, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[2] == "" {
		return AssetID{}, fmt.Errorf("invalid asset id %q", s)
	}
	customer, err := strconv.Atoi(parts[0])
	if err != nil {
		return AssetID{}, fmt.Errorf("invalid customer in asset id %q", s)
	}
	space, err := strconv.Atoi(parts[1])
	if err != nil {
		return AssetID{}, fmt.Errorf("invalid space in asset id %q", s)
	}
	return AssetID{Customer: customer, Space: space, Name: parts[2]}, nil
}

// DeliveryChannel is a bitmask of the channels an asset is available on
type DeliveryChannel int

const (
	ChannelImage DeliveryChannel = 1 << iota
	ChannelTimebased
	ChannelFile
)

// Has reports whether channel is included in the mask
func (c DeliveryChannel) Has(channel DeliveryChannel) bool {
	return c&channel != 0
}

// OrchestrationAsset is the transient tracked view of a catalog asset. It
// is never persisted. The tracker cache hands the same record to every
// concurrent request for an asset, so the record is read-only after
// population; materialization progress lives on the fast disk, not here.
type OrchestrationAsset struct {
	AssetID         AssetID
	Channels        DeliveryChannel
	Roles           []string
	RequiresAuth    bool
	MaxUnauthorised int
	Width           int
	Height          int
	Duration        int
	Location        string // backing-store URI, empty if unknown/stale
	OpenThumbs      []int  // longest-edge sizes viewable without auth
}

// AssetRecord is a row from the asset catalog (external collaborator)
type AssetRecord struct {
	ID               AssetID
	Width            int
	Height           int
	Duration         int
	Roles            []string
	MaxUnauthorised  int
	Origin           string
	MediaType        string
	NotForDelivery   bool
	DeliveryChannels DeliveryChannel
	Location         string
	OpenThumbs       []int
	Batch            int
	String1          string
	String2          string
	String3          string
	Number1          int64
	Number2          int64
	Number3          int64
}

// RequiresAuth reports whether this record is access controlled
func (r *AssetRecord) RequiresAuth() bool {
	return len(r.Roles) > 0 && r.MaxUnauthorised >= 0
}

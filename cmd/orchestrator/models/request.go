package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Credentials carries the caller-supplied auth material extracted from the
// inbound request
type Credentials struct {
	BearerToken string
	CookieValue string
}

// AssetRequest is a parsed asset-delivery request descriptor
type AssetRequest struct {
	RoutePrefix string
	Method      string
	RawPath     string
	AssetID     AssetID
	Credentials Credentials
}

// ImageRequest is an asset request on the image route with IIIF transform
// parameters
type ImageRequest struct {
	AssetRequest
	IIIF IIIFParams
}

// TimeBasedRequest is an asset request on the AV route; RenditionPath is
// the remainder of the path selecting the transcoded rendition
type TimeBasedRequest struct {
	AssetRequest
	RenditionPath string
}

// IIIFParams holds the IIIF Image API transform segments of a request
type IIIFParams struct {
	Region   string
	Size     string
	Rotation string
	Quality  string
	Format   string
}

// FullRegion reports whether the whole image is requested
func (p IIIFParams) FullRegion() bool {
	return p.Region == "full" || p.Region == ""
}

// MaxSize reports whether the size segment asks for the maximum size
func (p IIIFParams) MaxSize() bool {
	return p.Size == "max" || p.Size == "full"
}

// ExactSize returns the requested (width, height) when the size segment is
// an explicit w,h / w, / ,h form. ok is false for max/pct/confined sizes.
func (p IIIFParams) ExactSize() (width, height int, ok bool) {
	size := p.Size
	if size == "" || p.MaxSize() || strings.HasPrefix(size, "pct:") || strings.HasPrefix(size, "!") {
		return 0, 0, false
	}

	w, h, found := strings.Cut(size, ",")
	if !found {
		return 0, 0, false
	}
	if w != "" {
		width, _ = strconv.Atoi(w)
	}
	if h != "" {
		height, _ = strconv.Atoi(h)
	}
	return width, height, width > 0 || height > 0
}

// ParseIIIFParams parses the {region}/{size}/{rotation}/{quality}.{format}
// remainder of an image request path
func ParseIIIFParams(rest string) (IIIFParams, error) {
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) != 4 {
		return IIIFParams{}, fmt.Errorf("expected region/size/rotation/quality.format, got %q", rest)
	}

	quality, format, found := strings.Cut(segments[3], ".")
	if !found || quality == "" || format == "" {
		return IIIFParams{}, fmt.Errorf("malformed quality.format segment %q", segments[3])
	}

	return IIIFParams{
		Region:   segments[0],
		Size:     segments[1],
		Rotation: segments[2],
		Quality:  quality,
		Format:   format,
	}, nil
}

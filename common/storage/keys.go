package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// KeyGenerator builds storage keys, local fast-disk paths and public URIs
// for asset and projection objects. Asset keys follow the canonical
// customer/space/name form.
type KeyGenerator struct {
	region        string
	endpoint      string
	storageBucket string
	thumbsBucket  string
	outputBucket  string
	localRoot     string
}

// NewKeyGenerator creates a KeyGenerator
func NewKeyGenerator(region, endpoint, storageBucket, thumbsBucket, outputBucket, localRoot string) *KeyGenerator {
	return &KeyGenerator{
		region:        region,
		endpoint:      endpoint,
		storageBucket: storageBucket,
		thumbsBucket:  thumbsBucket,
		outputBucket:  outputBucket,
		localRoot:     localRoot,
	}
}

// StorageLocation returns the backing-store location for an asset key
func (g *KeyGenerator) StorageLocation(assetKey string) ObjectRef {
	return ObjectRef{Bucket: g.storageBucket, Key: assetKey}
}

// TimebasedLocation returns the location of a timebased rendition,
// e.g. customer/space/name/full/max/default.mp4
func (g *KeyGenerator) TimebasedLocation(assetKey, renditionPath string) ObjectRef {
	return ObjectRef{Bucket: g.storageBucket, Key: assetKey + "/" + strings.TrimPrefix(renditionPath, "/")}
}

// ThumbLocation returns the location of an individual thumbnail,
// keyed by longest-edge size
func (g *KeyGenerator) ThumbLocation(assetKey string, longestEdge int) ObjectRef {
	return ObjectRef{Bucket: g.thumbsBucket, Key: fmt.Sprintf("%s/full/%d.jpg", assetKey, longestEdge)}
}

// OutputLocation returns the location of a stored projection payload
func (g *KeyGenerator) OutputLocation(storageKey string) ObjectRef {
	return ObjectRef{Bucket: g.outputBucket, Key: storageKey}
}

// ControlFileLocation returns the location of a projection's control file
func (g *KeyGenerator) ControlFileLocation(storageKey string) ObjectRef {
	return ObjectRef{Bucket: g.outputBucket, Key: storageKey + ".json"}
}

// LocalPath returns the fast-disk path for an asset key
func (g *KeyGenerator) LocalPath(assetKey string) string {
	return filepath.Join(g.localRoot, filepath.FromSlash(assetKey))
}

// PublicURL formats a region-aware HTTP URL for an object. A configured
// custom endpoint (MinIO etc.) takes precedence over the AWS form.
func (g *KeyGenerator) PublicURL(ref ObjectRef) string {
	if g.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(g.endpoint, "/"), ref.Bucket, ref.Key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", ref.Bucket, g.region, ref.Key)
}

// S3URI formats the s3:// form of an object location
func (g *KeyGenerator) S3URI(ref ObjectRef) string {
	return ref.String()
}

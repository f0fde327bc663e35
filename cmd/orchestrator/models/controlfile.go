package models

import "time"

// ControlFile is the marker object recording the completion, in-progress
// and freshness state of a stored projection. A projection payload is only
// valid if its control file exists, is not InProcess and is not stale.
// InProcess=true is the exclusive signal that another worker is currently
// generating the payload; a worker crash leaves it set and the staleness
// threshold is the sole recovery path.
type ControlFile struct {
	Key         string    `json:"key"`
	Exists      bool      `json:"exists"`
	InProcess   bool      `json:"inProcess"`
	Created     time.Time `json:"created"`
	LastChecked time.Time `json:"lastChecked"`
	ItemCount   int       `json:"itemCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	Roles       []string  `json:"roles,omitempty"`
}

// IsStale reports whether the control file is older than staleSecs
func (c *ControlFile) IsStale(staleSecs int, now time.Time) bool {
	return c.Created.Add(time.Duration(staleSecs) * time.Second).Before(now)
}

// RequiresAuth reports whether the projection is access controlled
func (c *ControlFile) RequiresAuth() bool {
	return len(c.Roles) > 0
}

package models

import "time"

type BucketInfo struct {
	HasBucket     bool   `json:"hasBucket"`
	BucketName    string `json:"bucketName"`
	ObjectsAmount int    `json:"objectsAmount"`
	// BucketSize is the used space in bytes.
	BucketSize float64 `json:"bucketSize"`
}

type UserProfile struct {
	ID       string     `json:"_id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Bucket   BucketInfo `json:"bucket"`
	// StorageLimit is the quota in KiB.
	StorageLimit int64     `json:"storageLimit"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StorageLimitBytes converts the KiB quota to bytes.
func (p *UserProfile) StorageLimitBytes() int64 {
	return p.StorageLimit * 1024
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
}

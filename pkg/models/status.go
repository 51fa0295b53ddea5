package models

// PostStatus represents the journal status of a post block
type PostStatus string

const (
	PostStatusUnset    PostStatus = ""          // Zero value = unset/unknown
	PostStatusPending  PostStatus = "pending"   // Block found, download not finished
	PostStatusSuccess  PostStatus = "success"   // All selected images written
	PostStatusSkipped  PostStatus = "skipped"   // Folder already complete, or nothing qualified
	PostStatusFailure  PostStatus = "failure"   // Aborted by a fatal error
	PostStatusNotFound PostStatus = "not_found" // Post not in database
	PostStatusDBError  PostStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s PostStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PostStatus) IsValid() bool {
	switch s {
	case PostStatusPending, PostStatusSuccess, PostStatusSkipped, PostStatusFailure:
		return true
	}
	return false
}

// ImageStatus represents the journal status of an image
type ImageStatus string

const (
	ImageStatusUnset    ImageStatus = ""          // Zero value = unset/unknown
	ImageStatusPending  ImageStatus = "pending"   // Image queued for download
	ImageStatusSuccess  ImageStatus = "success"   // Image downloaded successfully
	ImageStatusFailure  ImageStatus = "failure"   // Image download failed
	ImageStatusNotFound ImageStatus = "not_found" // Image not in database
	ImageStatusDBError  ImageStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s ImageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ImageStatus) IsValid() bool {
	switch s {
	case ImageStatusPending, ImageStatusSuccess, ImageStatusFailure:
		return true
	}
	return false
}

package entities

// Picture is the metadata of an uploaded image; the bytes live elsewhere.
type Picture struct {
	ID          string `json:"id"`
	ContactID   string `json:"contactId"`
	Category    string `json:"category"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Order       int    `json:"order"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type AddPictureInput struct {
	ID          string `json:"id,omitempty"`
	ContactID   string `json:"contactId" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Key         string `json:"key" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	Order       int    `json:"order" validate:"gte=0,lte=999"`
}

// PictureCategory is the denormalized picture count of one
// (contact, category) pair.
type PictureCategory struct {
	ContactID     string `json:"contactId"`
	Category      string `json:"category"`
	TotalPictures int    `json:"totalPictures"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

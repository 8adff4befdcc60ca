package models

import "encoding/json"

// MediaFile is an inline base64 upload.
type MediaFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

type OwnerSubmissionRequest struct {
	OwnerName    string      `json:"owner_name"`
	Phone        string      `json:"phone"`
	Email        string      `json:"email"`
	SlotName     string      `json:"slot_name"`
	Location     string      `json:"location"`
	MapsLink     string      `json:"maps_link"`
	Availability string      `json:"availability"`
	Notes        string      `json:"notes"`
	PricePerHour json.Number `json:"price_per_hour"`

	// ImageNames and VideoName describe media the owner will send later.
	ImageNames   []string    `json:"image_names"`
	VideoName    string      `json:"video_name"`
	ImagesBase64 []MediaFile `json:"images_base64"`
	VideoBase64  *MediaFile  `json:"video_base64"`
}

type SubmissionMedia struct {
	ImagesUploaded int  `json:"images_uploaded"`
	VideoUploaded  bool `json:"video_uploaded"`
}

type OwnerSubmissionResponse struct {
	Message   string          `json:"message"`
	EmailID   *string         `json:"email_id"`
	Recipient string          `json:"recipient"`
	Media     SubmissionMedia `json:"media"`
}

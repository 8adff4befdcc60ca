package api

import (
	"net/http"
	"testing"

	"zlot-parking/internal/models"
)

func ownerBody() map[string]any {
	return map[string]any{
		"owner_name":     "Ada Park",
		"phone":          "+91 98765 43210",
		"email":          "ada@example.com",
		"slot_name":      "Basement B2",
		"location":       "MG Road, Bengaluru",
		"price_per_hour": 50,
		"image_names":    []string{"front.jpg"},
	}
}

func TestOwnerSubmission(t *testing.T) {
	env := newTestEnv(t, RouterOptions{})
	token := signToken(t, "user-1", nil)

	rec := env.do(t, http.MethodPost, "/owner/submission", token, ownerBody())
	expectStatus(t, rec, http.StatusCreated)
	resp := decode[models.OwnerSubmissionResponse](t, rec)
	if resp.Message != "Submission sent to ZLOT team email." || resp.Recipient != "team@example.com" {
		t.Errorf("response = %+v", resp)
	}
	if resp.EmailID == nil || *resp.EmailID != "email-1" {
		t.Errorf("email_id = %v, want email-1", resp.EmailID)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(env.mailer.sent))
	}
}

func TestOwnerSubmission_Errors(t *testing.T) {
	env := newTestEnv(t, RouterOptions{})
	token := signToken(t, "user-1", nil)

	missing := ownerBody()
	delete(missing, "owner_name")

	badPrice := ownerBody()
	badPrice["price_per_hour"] = 0

	withMedia := ownerBody()
	withMedia["images_base64"] = []map[string]string{{
		"name":         "front.jpg",
		"content_type": "image/jpeg",
		"data_base64":  "aGVsbG8=",
	}}

	tests := []struct {
		name   string
		body   map[string]any
		status int
		msg    string
	}{
		{"missing field", missing, http.StatusBadRequest, "owner_name, phone, email, slot_name, and location are required."},
		{"bad price", badPrice, http.StatusBadRequest, "price_per_hour must be a positive number."},
		{"no bucket", withMedia, http.StatusInternalServerError, "Owner media storage is not configured."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/owner/submission", token, tt.body)
			expectError(t, rec, tt.status, tt.msg)
		})
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(env.mailer.sent))
	}
}

// Package owner forwards parking space submissions from owners to the
// operations team, storing any attached media first.
package owner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const (
	MaxImages     = 8
	MaxImageBytes = 5 << 20
	MaxVideoBytes = 12 << 20

	DefaultRecipient = "zlotparking@gmail.com"
)

const msgSubmitted = "Submission sent to ZLOT team email."

// ErrMediaNotConfigured is returned when a submission carries media but no
// bucket is configured.
var ErrMediaNotConfigured = errors.New("Owner media storage is not configured.")

// ValidationError is a problem with the submitted fields.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Submitter identifies the authenticated user making the submission.
type Submitter struct {
	ID    string
	Email string
}

type Service struct {
	media     MediaStore
	mailer    Mailer
	recipient string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the submission service. media may be nil when no
// bucket is configured; submissions with inline media then fail.
func NewService(media MediaStore, mailer Mailer, recipient string, logger *slog.Logger) *Service {
	if recipient == "" {
		recipient = DefaultRecipient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{media: media, mailer: mailer, recipient: recipient, logger: logger, now: time.Now}
}

type submission struct {
	ownerName    string
	phone        string
	email        string
	slotName     string
	location     string
	mapsLink     string
	availability string
	notes        string
	pricePerHour int64

	imageNames []string
	videoName  string
	images     []models.MediaFile
	video      *models.MediaFile
}

type mediaLink struct {
	name string
	url  string
}

// Submit validates req, uploads its media and mails the summary.
func (s *Service) Submit(ctx context.Context, by Submitter, req models.OwnerSubmissionRequest) (*models.OwnerSubmissionResponse, error) {
	sub, err := normalize(req)
	if err != nil {
		return nil, err
	}

	var (
		imageLinks []mediaLink
		videoLink  *mediaLink
	)
	if len(sub.images) > 0 || sub.video != nil {
		imageLinks, videoLink, err = s.upload(ctx, by.ID, sub)
		if err != nil {
			return nil, err
		}
	}

	imageNames := sub.imageNames
	if len(sub.images) > 0 {
		imageNames = make([]string, 0, len(sub.images))
		for _, img := range sub.images {
			imageNames = append(imageNames, img.Name)
		}
	}
	videoName := sub.videoName
	if sub.video != nil {
		videoName = sub.video.Name
	}

	email := s.buildEmail(sub, by, imageNames, videoName, imageLinks, videoLink)
	if s.mailer == nil {
		return nil, ErrMailerNotConfigured
	}
	id, err := s.mailer.Send(ctx, email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "owner submission sent",
		"user_id", by.ID, "images", len(imageLinks), "video", videoLink != nil)

	resp := &models.OwnerSubmissionResponse{
		Message:   msgSubmitted,
		Recipient: s.recipient,
		Media: models.SubmissionMedia{
			ImagesUploaded: len(imageLinks),
			VideoUploaded:  videoLink != nil,
		},
	}
	if id != "" {
		resp.EmailID = &id
	}
	return resp, nil
}

func normalize(req models.OwnerSubmissionRequest) (*submission, error) {
	sub := &submission{
		ownerName:    clip(req.OwnerName, 120),
		phone:        clip(req.Phone, 40),
		email:        clip(req.Email, 180),
		slotName:     clip(req.SlotName, 160),
		location:     clip(req.Location, 400),
		mapsLink:     clip(req.MapsLink, 500),
		availability: clip(req.Availability, 80),
		notes:        clip(req.Notes, 2000),
		videoName:    clip(req.VideoName, 180),
	}

	for _, name := range req.ImageNames {
		if n := clip(name, 180); n != "" && len(sub.imageNames) < MaxImages {
			sub.imageNames = append(sub.imageNames, n)
		}
	}
	for i, f := range req.ImagesBase64 {
		if i >= MaxImages {
			break
		}
		if mf, ok := normalizeFile(f); ok {
			sub.images = append(sub.images, mf)
		}
	}
	if req.VideoBase64 != nil {
		if mf, ok := normalizeFile(*req.VideoBase64); ok {
			sub.video = &mf
		}
	}

	if sub.ownerName == "" || sub.phone == "" || sub.email == "" || sub.slotName == "" || sub.location == "" {
		return nil, invalid("owner_name, phone, email, slot_name, and location are required.")
	}

	price, err := req.PricePerHour.Float64()
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, invalid("price_per_hour must be a positive number.")
	}
	sub.pricePerHour = int64(math.Round(price))

	if len(sub.imageNames) == 0 && len(sub.images) == 0 {
		return nil, invalid("Provide at least one image. Use image_names (legacy) or images_base64 (with data).")
	}
	return sub, nil
}

func normalizeFile(f models.MediaFile) (models.MediaFile, bool) {
	out := models.MediaFile{
		Name:        clip(f.Name, 180),
		ContentType: strings.ToLower(clip(f.ContentType, 120)),
		DataBase64:  strings.TrimSpace(f.DataBase64),
	}
	if out.Name == "" || out.ContentType == "" || out.DataBase64 == "" {
		return models.MediaFile{}, false
	}
	return out, true
}

// clip trims s and cuts it to at most n characters.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

func (s *Service) upload(ctx context.Context, userID string, sub *submission) ([]mediaLink, *mediaLink, error) {
	if s.media == nil {
		return nil, nil, ErrMediaNotConfigured
	}

	ref := fmt.Sprintf("%d-%s", s.now().UnixMilli(), uuid.NewString()[:8])
	links := make([]mediaLink, 0, len(sub.images))

	for i, img := range sub.images {
		if !strings.HasPrefix(img.ContentType, "image/") {
			return nil, nil, invalid(fmt.Sprintf("Image %s has invalid content type.", img.Name))
		}
		data, err := decodeFile(img, MaxImageBytes)
		if err != nil {
			return nil, nil, err
		}
		key := fmt.Sprintf("%s/%s/images/%d-%s", userID, ref, i+1, sanitizeFileName(img.Name))
		url, err := s.media.Put(ctx, key, img.ContentType, data)
		if err != nil {
			return nil, nil, fmt.Errorf("Failed to upload image: %w", err)
		}
		links = append(links, mediaLink{name: img.Name, url: url})
	}

	if sub.video == nil {
		return links, nil, nil
	}

	v := sub.video
	if !strings.HasPrefix(v.ContentType, "video/") {
		return nil, nil, invalid(fmt.Sprintf("Video %s has invalid content type.", v.Name))
	}
	data, err := decodeFile(*v, MaxVideoBytes)
	if err != nil {
		return nil, nil, err
	}
	key := fmt.Sprintf("%s/%s/video/%s", userID, ref, sanitizeFileName(v.Name))
	url, err := s.media.Put(ctx, key, v.ContentType, data)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to upload video: %w", err)
	}
	return links, &mediaLink{name: v.Name, url: url}, nil
}

func decodeFile(f models.MediaFile, maxBytes int) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.DataBase64)
	if err != nil {
		return nil, invalid(fmt.Sprintf("Uploaded file %s is not valid base64.", f.Name))
	}
	if len(data) == 0 {
		return nil, invalid(fmt.Sprintf("Uploaded file %s is empty.", f.Name))
	}
	if len(data) > maxBytes {
		return nil, invalid(fmt.Sprintf("Uploaded file %s exceeds size limit.", f.Name))
	}
	return data, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeFileName(name string) string {
	if out := unsafeFileChars.ReplaceAllString(name, "_"); out != "" {
		return out
	}
	return "upload.bin"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (s *Service) buildEmail(sub *submission, by Submitter, imageNames []string, videoName string, imageLinks []mediaLink, videoLink *mediaLink) Email {
	submittedAt := s.now().Format("02 Jan 2006, 03:04 PM")
	names := orDash(strings.Join(imageNames, ", "))
	price := fmt.Sprintf("%d", sub.pricePerHour)

	var text strings.Builder
	fmt.Fprintln(&text, "New ZLOT Space Provider Submission")
	fmt.Fprintln(&text)
	fmt.Fprintf(&text, "Owner Name: %s\n", sub.ownerName)
	fmt.Fprintf(&text, "Phone: %s\n", sub.phone)
	fmt.Fprintf(&text, "Contact Email: %s\n", sub.email)
	fmt.Fprintf(&text, "Space Name: %s\n", sub.slotName)
	fmt.Fprintf(&text, "Location: %s\n", sub.location)
	fmt.Fprintf(&text, "Price / Hour (INR): %s\n", price)
	fmt.Fprintf(&text, "Availability: %s\n", orDash(sub.availability))
	fmt.Fprintf(&text, "Google Maps Link: %s\n", orDash(sub.mapsLink))
	fmt.Fprintf(&text, "Notes: %s\n", orDash(sub.notes))
	fmt.Fprintln(&text)
	fmt.Fprintf(&text, "Images (%d): %s\n", len(imageNames), names)
	if len(imageLinks) > 0 {
		fmt.Fprintln(&text)
		fmt.Fprintln(&text, "Image links:")
		for i, l := range imageLinks {
			fmt.Fprintf(&text, "%d. %s -> %s\n", i+1, l.name, l.url)
		}
	}
	fmt.Fprintf(&text, "Video: %s\n", orDash(videoName))
	if videoLink != nil {
		fmt.Fprintf(&text, "Video link: %s\n", videoLink.url)
	}
	fmt.Fprintln(&text)
	fmt.Fprintf(&text, "Submitted by user id: %s\n", by.ID)
	fmt.Fprintf(&text, "Submitted by auth email: %s\n", orDash(by.Email))
	fmt.Fprintf(&text, "Submitted at: %s", submittedAt)

	esc := html.EscapeString
	var h strings.Builder
	field := func(label, value string) {
		fmt.Fprintf(&h, "<p><strong>%s:</strong> %s</p>\n", label, esc(value))
	}
	h.WriteString("<h2>New ZLOT Space Provider Submission</h2>\n")
	field("Owner Name", sub.ownerName)
	field("Phone", sub.phone)
	field("Contact Email", sub.email)
	field("Space Name", sub.slotName)
	field("Location", sub.location)
	field("Price / Hour (INR)", price)
	field("Availability", orDash(sub.availability))
	field("Google Maps Link", orDash(sub.mapsLink))
	field("Notes", orDash(sub.notes))
	field(fmt.Sprintf("Images (%d)", len(imageNames)), names)
	if len(imageLinks) == 0 {
		h.WriteString("<p><strong>Image links:</strong> -</p>\n")
	} else {
		h.WriteString("<p><strong>Image links:</strong></p><ol>")
		for _, l := range imageLinks {
			fmt.Fprintf(&h, `<li><a href="%s" target="_blank" rel="noreferrer">%s</a></li>`, esc(l.url), esc(l.name))
		}
		h.WriteString("</ol>\n")
	}
	field("Video", orDash(videoName))
	if videoLink != nil {
		fmt.Fprintf(&h, `<p><strong>Video link:</strong> <a href="%s" target="_blank" rel="noreferrer">%s</a></p>`+"\n",
			esc(videoLink.url), esc(videoLink.name))
	} else {
		h.WriteString("<p><strong>Video link:</strong> -</p>\n")
	}
	h.WriteString("<hr />\n")
	field("Submitted by user id", by.ID)
	field("Submitted by auth email", orDash(by.Email))
	field("Submitted at", submittedAt)

	return Email{
		To:      s.recipient,
		Subject: fmt.Sprintf("New space submission: %s (%s)", sub.slotName, sub.ownerName),
		Text:    text.String(),
		HTML:    h.String(),
		ReplyTo: sub.email,
	}
}

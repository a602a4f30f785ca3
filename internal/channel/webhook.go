package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

const webhookTokenExpiration = 5 * time.Minute

// WebhookSender POSTs messages to a URL as multipart/form-data: a
// payload_json field holding {"content": ...} and the attachment as
// files[0]. Requests carry an HS256 bearer token signed with Secret.
type WebhookSender struct {
	ID     ID
	URL    string
	Secret []byte
	// Client defaults to a client with a 30s timeout.
	Client *http.Client
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, msg *Message) error {
	body, contentType, err := encodeMultipart(msg)
	if err != nil {
		return dberrors.DestinationUnavailable(s.ID.String(), err.Error()).Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, body)
	if err != nil {
		return dberrors.DestinationUnavailable(s.ID.String(), err.Error()).Wrap(err)
	}
	req.Header.Set("Content-Type", contentType)
	if len(s.Secret) != 0 {
		token, err := s.token()
		if err != nil {
			return dberrors.DestinationUnavailable(s.ID.String(), err.Error()).Wrap(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return dberrors.DestinationUnavailable(s.ID.String(), err.Error()).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dberrors.DestinationUnavailable(s.ID.String(), "webhook returned "+resp.Status)
	}
	return nil
}

// Describe implements Sender.
func (s *WebhookSender) Describe() string {
	return "webhook:" + s.URL
}

func (s *WebhookSender) token() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": "jsondb",
		"sub": s.ID.String(),
		"exp": now.Add(webhookTokenExpiration).Unix(),
		"iat": now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

func encodeMultipart(msg *Message) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	payload, err := json.Marshal(map[string]string{"content": msg.Content})
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return nil, "", err
	}
	if a := msg.Attachment; a != nil {
		fw, err := mw.CreateFormFile("files[0]", filepath.Base(a.Name))
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

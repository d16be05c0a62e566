package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultMailerLiteURL = "https://api.mailerlite.com/api/v2"

// MailerLiteClient syncs verified addresses into a MailerLite group.
type MailerLiteClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewMailerLiteClient creates a MailerLite API client.
func NewMailerLiteClient(apiKey string) *MailerLiteClient {
	return &MailerLiteClient{
		APIKey:  apiKey,
		BaseURL: defaultMailerLiteURL,
		Client:  http.DefaultClient,
	}
}

type subscribeRequest struct {
	Email          string `json:"email"`
	Resubscribe    bool   `json:"resubscribe"`
	Type           string `json:"type"`
	Autoresponders bool   `json:"autoresponders"`
}

// AddGroupMember subscribes an email address to a mailing-list group.
func (c *MailerLiteClient) AddGroupMember(ctx context.Context, groupID, email string) error {
	payload, err := json.Marshal(subscribeRequest{
		Email:          email,
		Resubscribe:    true,
		Type:           "active",
		Autoresponders: true,
	})
	if err != nil {
		return fmt.Errorf("error marshaling subscriber payload: %w", err)
	}

	url := fmt.Sprintf("%s/groups/%s/subscribers", c.BaseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building subscriber request: %w", err)
	}
	req.Header.Set("X-MailerLite-ApiKey", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("error adding subscriber to group: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error adding subscriber to group: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

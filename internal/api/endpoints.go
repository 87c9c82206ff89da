package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/buildlens/delivery-intake/internal/delivery"
)

// ListFilter narrows the delivery list: today's deliveries, a single site,
// a single status. Zero values mean no filtering on that axis.
type ListFilter struct {
	Today    bool
	ObjectID string
	Status   delivery.Status
}

// ListDeliveries fetches deliveries matching the filter.
func (c *Client) ListDeliveries(ctx context.Context, filter ListFilter) ([]delivery.Delivery, error) {
	q := url.Values{}
	if filter.Today {
		q.Set("today", "true")
	}
	if filter.ObjectID != "" {
		q.Set("object_id", filter.ObjectID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}

	path := "/deliveries/list"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := c.request(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	var deliveries []delivery.Delivery
	if err := json.Unmarshal(body, &deliveries); err != nil {
		return nil, fmt.Errorf("parse delivery list: %w", err)
	}
	return deliveries, nil
}

// GetDelivery fetches one delivery by id.
func (c *Client) GetDelivery(ctx context.Context, id string) (*delivery.Delivery, error) {
	body, err := c.request(ctx, http.MethodGet, "/deliveries/"+id, nil, true)
	if err != nil {
		return nil, fmt.Errorf("get delivery %s: %w", id, err)
	}

	var d delivery.Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("parse delivery: %w", err)
	}
	return &d, nil
}

// UpdateDelivery patches descriptive fields of a delivery. patch maps field
// names to new values; the backend ignores unknown fields.
func (c *Client) UpdateDelivery(ctx context.Context, id string, patch map[string]any) error {
	if _, err := c.request(ctx, http.MethodPatch, "/deliveries/"+id, patch, true); err != nil {
		return fmt.Errorf("update delivery %s: %w", id, err)
	}
	return nil
}

// PostStatus requests a status transition with a justification comment.
// Used for accept, reject and send_to_lab; receiving goes through Receive.
func (c *Client) PostStatus(ctx context.Context, id string, status delivery.Status, comment string) error {
	body := map[string]string{"status": string(status), "comment": comment}
	if _, err := c.request(ctx, http.MethodPost, "/deliveries/"+id+"/status", body, true); err != nil {
		return fmt.Errorf("post status %s for delivery %s: %w", status, id, err)
	}
	return nil
}

// Receive marks a delivery as physically received at the given site.
func (c *Client) Receive(ctx context.Context, id, objectID string) error {
	body := map[string]string{"object_id": objectID}
	if _, err := c.request(ctx, http.MethodPost, "/deliveries/"+id+"/receive", body, true); err != nil {
		return fmt.Errorf("receive delivery %s: %w", id, err)
	}
	return nil
}

// UploadPhotos attaches invoice photo references to a delivery.
func (c *Client) UploadPhotos(ctx context.Context, id string, photos []string) error {
	body := map[string][]string{"photos": photos}
	if _, err := c.request(ctx, http.MethodPost, "/deliveries/"+id+"/photos", body, true); err != nil {
		return fmt.Errorf("upload photos for delivery %s: %w", id, err)
	}
	return nil
}

// ConfirmMaterials persists the reviewed material records as the delivery's
// confirmed intake data.
func (c *Client) ConfirmMaterials(ctx context.Context, id string, materials []delivery.MaterialRecord) error {
	body := map[string]any{"materials": materials}
	if _, err := c.request(ctx, http.MethodPost, "/deliveries/"+id, body, true); err != nil {
		return fmt.Errorf("confirm materials for delivery %s: %w", id, err)
	}
	return nil
}

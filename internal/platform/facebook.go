// Package platform holds the concrete PlatformAdapter implementations the
// core dispatches through. Both adapters talk to their platform's Graph
// API over plain HTTP; authentication is a long-lived access token
// supplied via configuration.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

const facebookGraphBase = "https://graph.facebook.com/v19.0"

// FacebookAdapter publishes to, and deletes from, a Facebook Page.
// Facebook is the only platform this core supports deletion on.
type FacebookAdapter struct {
	client      *http.Client
	pageID      string
	accessToken string
}

// NewFacebookAdapter builds an adapter bound to one Page.
func NewFacebookAdapter(pageID, accessToken string) *FacebookAdapter {
	return &FacebookAdapter{
		client:      &http.Client{Timeout: 30 * time.Second},
		pageID:      pageID,
		accessToken: accessToken,
	}
}

func (a *FacebookAdapter) Platform() models.Platform { return models.PlatformFacebook }

func (a *FacebookAdapter) Publish(ctx context.Context, draft *models.Draft, imageRef string) (*contracts.PublishResult, error) {
	endpoint := fmt.Sprintf("%s/%s/feed", facebookGraphBase, a.pageID)
	if imageRef != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", facebookGraphBase, a.pageID)
	}

	form := url.Values{}
	form.Set("access_token", a.accessToken)
	if imageRef != "" {
		form.Set("url", imageRef)
		form.Set("caption", withHashtags(draft))
	} else {
		form.Set("message", withHashtags(draft))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &contracts.AdapterError{Kind: contracts.AdapterPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		PostID string `json:"post_id"`
		Error  *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}

	if body.Error != nil {
		kind := contracts.AdapterTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = contracts.AdapterPermanent
		}
		return nil, &contracts.AdapterError{Kind: kind, Err: fmt.Errorf("facebook: %s", body.Error.Message)}
	}

	postID := body.PostID
	if postID == "" {
		postID = body.ID
	}
	return &contracts.PublishResult{
		PostID:  postID,
		PostURL: fmt.Sprintf("https://www.facebook.com/%s", postID),
	}, nil
}

func (a *FacebookAdapter) Delete(ctx context.Context, platformPostID string) error {
	endpoint := fmt.Sprintf("%s/%s?access_token=%s", facebookGraphBase, platformPostID, url.QueryEscape(a.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return &contracts.AdapterError{Kind: contracts.AdapterPermanent, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: fmt.Errorf("facebook delete: status %d", resp.StatusCode)}
	}
	return nil
}

func withHashtags(draft *models.Draft) string {
	if len(draft.Hashtags) == 0 {
		return draft.Body
	}
	return draft.Body + "\n\n" + strings.Join(draft.Hashtags, " ")
}

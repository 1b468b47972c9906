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

const instagramGraphBase = "https://graph.facebook.com/v19.0"

// InstagramAdapter publishes to an Instagram Business Account via the
// Graph API's two-step container-then-publish flow. Instagram exposes no
// delete endpoint for published media, so Delete always reports
// unsupported and leaves takedown to the recovery service's manual path.
type InstagramAdapter struct {
	client             *http.Client
	businessAccountID  string
	accessToken        string
}

// NewInstagramAdapter builds an adapter bound to one Business Account.
func NewInstagramAdapter(businessAccountID, accessToken string) *InstagramAdapter {
	return &InstagramAdapter{
		client:            &http.Client{Timeout: 30 * time.Second},
		businessAccountID: businessAccountID,
		accessToken:       accessToken,
	}
}

func (a *InstagramAdapter) Platform() models.Platform { return models.PlatformInstagram }

func (a *InstagramAdapter) Publish(ctx context.Context, draft *models.Draft, imageRef string) (*contracts.PublishResult, error) {
	if imageRef == "" {
		return nil, &contracts.AdapterError{Kind: contracts.AdapterPermanent, Err: fmt.Errorf("instagram requires an image")}
	}

	containerID, err := a.createContainer(ctx, draft, imageRef)
	if err != nil {
		return nil, err
	}

	postID, err := a.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return &contracts.PublishResult{
		PostID:  postID,
		PostURL: fmt.Sprintf("https://www.instagram.com/p/%s/", postID),
	}, nil
}

func (a *InstagramAdapter) createContainer(ctx context.Context, draft *models.Draft, imageRef string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", instagramGraphBase, a.businessAccountID)

	form := url.Values{}
	form.Set("access_token", a.accessToken)
	form.Set("image_url", imageRef)
	form.Set("caption", withHashtags(draft))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	if body.Error != nil {
		kind := contracts.AdapterTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = contracts.AdapterPermanent
		}
		return "", &contracts.AdapterError{Kind: kind, Err: fmt.Errorf("instagram container: %s", body.Error.Message)}
	}
	return body.ID, nil
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, containerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", instagramGraphBase, a.businessAccountID)

	form := url.Values{}
	form.Set("access_token", a.accessToken)
	form.Set("creation_id", containerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
	}
	if body.Error != nil {
		kind := contracts.AdapterTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = contracts.AdapterPermanent
		}
		return "", &contracts.AdapterError{Kind: kind, Err: fmt.Errorf("instagram publish: %s", body.Error.Message)}
	}
	return body.ID, nil
}

// Delete always reports unsupported: Instagram's Graph API has no
// endpoint to remove published media. The recovery service treats this
// as a signal to fall back to manual_recovery_needed.
func (a *InstagramAdapter) Delete(ctx context.Context, platformPostID string) error {
	return &contracts.AdapterError{
		Kind: contracts.AdapterUnsupported,
		Err:  fmt.Errorf("instagram does not support programmatic deletion of published media"),
	}
}

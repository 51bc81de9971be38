// Package youtubeapi adapts the YouTube Data API v3 live chat endpoints
// to the relay's chat source contract. A stream id is a video id; the
// chat session id is the video's active live chat id. Authentication is
// either a plain API key or an OAuth refresh token, per config; the
// relay only needs read scope.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/tl-relay/config"
	"github.com/onnwee/tl-relay/relay"
)

// Source reads live chat through the Data API. Implements
// relay.ChatSource.
type Source struct {
	svc *yt.Service
}

// New builds the API client from cfg: YT_API_KEY when set, otherwise
// the client id/secret/refresh token trio. Extra options (custom
// endpoint, http client) are for tests.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*Source, error) {
	var base []option.ClientOption
	switch {
	case cfg.YTAPIKey != "":
		base = append(base, option.WithAPIKey(cfg.YTAPIKey))
	case cfg.YTClientID != "" && cfg.YTClientSecret != "" && cfg.YTRefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeReadonlyScope},
		}
		ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.YTRefreshToken})
		base = append(base, option.WithTokenSource(ts))
	default:
		return nil, errors.New("youtube auth not configured: set YT_API_KEY or YT_CLIENT_ID/YT_CLIENT_SECRET/YT_REFRESH_TOKEN")
	}
	svc, err := yt.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Source{svc: svc}, nil
}

// ResolveSession looks up videoID and returns its active live chat id.
func (s *Source) ResolveSession(ctx context.Context, videoID string) (string, error) {
	resp, err := s.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list %s: %w", videoID, classify(err))
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: video %s not found", relay.ErrNoLiveChat, videoID)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", fmt.Errorf("%w: video %s has no active chat", relay.ErrNoLiveChat, videoID)
	}
	return details.ActiveLiveChatId, nil
}

// FetchPage reads one page of live chat messages after cursor. A chat
// that has gone away (ended, deleted) is reported as an ended page,
// not an error.
func (s *Source) FetchPage(ctx context.Context, chatID, cursor string) (relay.Page, error) {
	call := s.svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	resp, err := call.Do()
	if err != nil {
		if chatGone(err) {
			return relay.Page{Ended: true}, nil
		}
		return relay.Page{}, fmt.Errorf("livechatmessages.list: %w", classify(err))
	}

	page := relay.Page{
		NextCursor: resp.NextPageToken,
		Interval:   time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
		Ended:      resp.OfflineAt != "",
	}
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		ev := relay.ChatEvent{ID: item.Id, Text: item.Snippet.DisplayMessage, Kind: item.Snippet.Type}
		if item.Snippet.Type == "textMessageEvent" {
			ev.Kind = relay.EventText
		}
		if item.AuthorDetails != nil {
			ev.Author = item.AuthorDetails.DisplayName
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

// classify maps Data API failures onto the relay taxonomy: quota and
// rate refusals become relay.ErrQuotaExceeded, anything else stays
// transient.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
				return fmt.Errorf("%w: %v", relay.ErrQuotaExceeded, err)
			}
		}
		if gerr.Code == 429 {
			return fmt.Errorf("%w: %v", relay.ErrQuotaExceeded, err)
		}
	}
	return err
}

// chatGone reports API reasons that mean the chat no longer exists
// rather than the request having failed.
func chatGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "liveChatEnded", "liveChatNotFound", "liveChatDisabled":
			return true
		}
	}
	return false
}

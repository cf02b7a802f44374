// Package upload publishes an assembled video to YouTube through the
// Data API v3. It is an optional post-pipeline step and only accepts
// real video files, never the mock placeholders.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"pet-video-pipeline/config"
)

// Metadata is what the upload call needs beyond the file itself.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Uploader publishes final videos under the configured channel.
type Uploader struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg}
}

// Run uploads videoFile and returns the YouTube video ID and URL.
func (u *Uploader) Run(ctx context.Context, videoFile string, meta Metadata) (string, string, error) {
	if !strings.EqualFold(filepath.Ext(videoFile), ".mp4") {
		return "", "", fmt.Errorf("refusing to upload %s: only .mp4 output is publishable", videoFile)
	}

	logrus.Info("[upload] authenticating with YouTube API")
	client, err := u.oauthClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           u.cfg.Upload.CategoryID,
			DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.cfg.Upload.Visibility,
			SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		logrus.Infof("[upload] uploading %q (%.1f MB)", meta.Title, float64(fi.Size())/1024/1024)
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(u.cfg.Upload.NotifySubscribers)
	call.Media(f)

	uploaded, err := call.Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoID := uploaded.Id
	videoURL := "https://www.youtube.com/watch?v=" + videoID
	logrus.Infof("[upload] ✅ published %s", videoURL)
	return videoID, videoURL, nil
}

// oauthClient builds an authenticated HTTP client from env credentials.
func (u *Uploader) oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// LogUpload records the upload result next to the pipeline outputs.
func LogUpload(outputDir, videoID, videoURL, videoFile string, meta Metadata) error {
	entry := map[string]any{
		"video_id":    videoID,
		"video_url":   videoURL,
		"title":       meta.Title,
		"video_file":  videoFile,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := json.MarshalIndent(entry, "", "  ")
	path := filepath.Join(outputDir, "upload_"+time.Now().Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	logrus.Infof("[upload] upload log saved: %s", path)
	return nil
}

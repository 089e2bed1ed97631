package client

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cinevideo/api/internal/config"
)

// DrivePublisher uploads artifacts into a Google Drive folder.
type DrivePublisher struct {
	srv      *drive.Service
	folderID string
}

// NewDrivePublisher authenticates with a service account when one is
// configured, otherwise with an OAuth refresh token.
func NewDrivePublisher(ctx context.Context, cfg *config.GDriveConfig) (*DrivePublisher, error) {
	var opt option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.ServiceAccountJSON), drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("invalid service account json: %w", err)
		}
		opt = option.WithCredentials(creds)
	case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RefreshToken != "":
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveFileScope},
		}
		tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
		opt = option.WithHTTPClient(conf.Client(ctx, tok))
	default:
		return nil, fmt.Errorf("google drive credentials not configured")
	}

	srv, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewDrivePublisherWithService(srv, cfg.FolderID), nil
}

func NewDrivePublisherWithService(srv *drive.Service, folderID string) *DrivePublisher {
	return &DrivePublisher{srv: srv, folderID: folderID}
}

func (c *DrivePublisher) Name() string { return "gdrive" }

// Publish uploads the file and returns its webViewLink.
func (c *DrivePublisher) Publish(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	file := &drive.File{Name: key, MimeType: "video/mp4"}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	created, err := c.srv.Files.Create(file).
		Media(f, googleapi.ContentType("video/mp4")).
		SupportsAllDrives(true).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive upload failed: %w", err)
	}

	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

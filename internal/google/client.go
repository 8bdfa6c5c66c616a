// Package google adapts Drive, Slides and Sheets to the document, grant and
// dataset interfaces used by the share workflow.
package google

import (
	"context"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"google.golang.org/api/slides/v1"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
	"github.com/kyleking/slidefill/internal/pool"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/templater"
)

// Scopes requested for the service account
var Scopes = []string{
	drive.DriveScope,
	slides.PresentationsScope,
	sheets.SpreadsheetsReadonlyScope,
}

// Client implements templater.DocumentService and share.Granter on Google APIs.
// Every call is retried with backoff when the API reports a rate limit.
type Client struct {
	drive   *drive.Service
	slides  *slides.Service
	sheets  *sheets.Service
	backoff pool.Backoff
}

// NewClient builds API services from cfg. Extra options are appended after the
// credentials, so tests can point the client at a fake server.
func NewClient(ctx context.Context, cfg config.GoogleConfig, backoff pool.Backoff, extra ...option.ClientOption) (*Client, error) {
	var opts []option.ClientOption

	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(Scopes...))
	} else if len(extra) == 0 {
		return nil, errors.NewConfigError("google credentials file is required", "google.credentials_file").
			WithSuggestion("Set SLIDEFILL_GOOGLE_CREDENTIALS_FILE to a service account key file")
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	opts = append(opts, extra...)

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeAuth, "failed to create Drive service")
	}

	slidesSvc, err := slides.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeAuth, "failed to create Slides service")
	}

	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeAuth, "failed to create Sheets service")
	}

	return &Client{drive: driveSvc, slides: slidesSvc, sheets: sheetsSvc, backoff: backoff}, nil
}

// Copy duplicates the template presentation under a new title
func (c *Client) Copy(ctx context.Context, templateID, title string) (string, error) {
	var copied *drive.File

	err := pool.Retry(ctx, c.backoff, func(ctx context.Context) error {
		var err error

		copied, err = c.drive.Files.Copy(templateID, &drive.File{Name: title}).
			SupportsAllDrives(true).
			Fields("id", "name").
			Context(ctx).
			Do()

		return classify(err, templateID)
	})
	if err != nil {
		return "", err
	}

	logging.WithFields(map[string]interface{}{
		"template": templateID,
		"artifact": copied.Id,
		"title":    title,
	}).Debug("Copied template")

	return copied.Id, nil
}

// Substitute replaces every placeholder in one batch update
func (c *Client) Substitute(ctx context.Context, artifactID string, replacements []templater.Replacement) error {
	if len(replacements) == 0 {
		return nil
	}

	requests := make([]*slides.Request, 0, len(replacements))
	for _, r := range replacements {
		requests = append(requests, &slides.Request{
			ReplaceAllText: &slides.ReplaceAllTextRequest{
				ContainsText: &slides.SubstringMatchCriteria{Text: r.Placeholder, MatchCase: false},
				ReplaceText:  r.Value,
			},
		})
	}

	batch := &slides.BatchUpdatePresentationRequest{Requests: requests}

	return pool.Retry(ctx, c.backoff, func(ctx context.Context) error {
		_, err := c.slides.Presentations.BatchUpdate(artifactID, batch).Context(ctx).Do()
		return classify(err, artifactID)
	})
}

// Grant gives recipient role on the artifact without sending an email
func (c *Client) Grant(ctx context.Context, artifactID, recipient, role string) error {
	perm := &drive.Permission{Type: "user", Role: role, EmailAddress: recipient}

	return pool.Retry(ctx, c.backoff, func(ctx context.Context) error {
		_, err := c.drive.Permissions.Create(artifactID, perm).
			SendNotificationEmail(false).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()

		return classify(err, artifactID)
	})
}

// classify maps API failures onto the error taxonomy, keeping the cause
func classify(err error, subject string) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return errors.Wrap(err, errors.ErrTypeNetwork, "google API request failed").WithSubject(subject)
	}

	switch {
	case pool.IsRateLimitError(apiErr):
		return errors.Wrap(err, errors.ErrTypeRateLimit, "google API rate limit exceeded").WithSubject(subject)
	case apiErr.Code == http.StatusNotFound:
		return errors.Wrap(err, errors.ErrTypeNotFound, "file not found").WithSubject(subject).
			WithSuggestion("Check that the file is shared with the service account")
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return errors.Wrap(err, errors.ErrTypeAuth, "google API denied access").WithSubject(subject).
			WithSuggestion("Check that the service account can edit the file")
	default:
		return errors.Wrap(err, errors.ErrTypeNetwork, "google API request failed").WithSubject(subject)
	}
}

var (
	_ templater.DocumentService = (*Client)(nil)
	_ share.Granter             = (*Client)(nil)
)

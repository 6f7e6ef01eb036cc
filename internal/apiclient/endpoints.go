package apiclient

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/skinscan/internal/label"
)

const (
	pathSession        = "/v1/session"
	pathConsent        = "/v1/consent"
	pathAnalyze        = "/v1/analyze"
	pathLabel          = "/v1/label"
	pathProgressDelete = "/v1/progress/delete_all"
	pathProgressList   = "/v1/progress/list"
	pathMeDelete       = "/v1/me/delete"
	pathLegalBundle    = "/v1/legal/bundle"
	pathDonate         = "/v1/donate"

	photoFilename = "photo.jpg"
	roiFilename   = "roi.jpg"
)

// CreateSession asks the service for a new session bound to deviceToken.
func (c *Client) CreateSession(ctx context.Context, deviceToken string) (*SessionResponse, error) {
	var out SessionResponse
	err := c.do(ctx, call{
		operation:   opCreateSession,
		method:      http.MethodPost,
		path:        pathSession,
		deviceToken: deviceToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LegalBundle fetches the current privacy policy, terms of use and consent
// copy. It needs no session.
func (c *Client) LegalBundle(ctx context.Context) (*LegalBundle, error) {
	var out LegalBundle
	err := c.do(ctx, call{
		operation: opLegalBundle,
		method:    http.MethodGet,
		path:      pathLegalBundle,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertConsent replaces the service-side consent with the full value given.
// Accepted legal versions are sent only when set.
func (c *Client) UpsertConsent(ctx context.Context, auth Auth, consent Consent) error {
	body, err := jsonBody(opUpsertConsent, consent)
	if err != nil {
		return err
	}
	return c.do(ctx, call{
		operation:   opUpsertConsent,
		method:      http.MethodPost,
		path:        pathConsent,
		auth:        &auth,
		body:        body,
		contentType: contentTypeJSON,
	}, nil)
}

// Analyze uploads a full captured photo for analysis.
func (c *Client) Analyze(ctx context.Context, auth Auth, image io.Reader) (*AnalysisResult, error) {
	return c.analyze(ctx, auth, photoFilename, image)
}

// AnalyzeROI uploads an already cropped region of interest.
func (c *Client) AnalyzeROI(ctx context.Context, auth Auth, image io.Reader) (*AnalysisResult, error) {
	return c.analyze(ctx, auth, roiFilename, image)
}

func (c *Client) analyze(ctx context.Context, auth Auth, filename string, image io.Reader) (*AnalysisResult, error) {
	body, contentType, err := multipartImage(filename, image)
	if err != nil {
		return nil, err
	}
	var out AnalysisResult
	err = c.do(ctx, call{
		operation:   opAnalyze,
		method:      http.MethodPost,
		path:        pathAnalyze,
		auth:        &auth,
		body:        body,
		contentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LabelSample submits labels for a donated ROI sample. A response with
// stored=false is returned as a declined LabelOutcome, not as an error.
func (c *Client) LabelSample(ctx context.Context, auth Auth, sub label.Submission) (LabelOutcome, error) {
	body, err := jsonBody(opLabelSample, sub)
	if err != nil {
		return LabelOutcome{}, err
	}
	var out storedResponse
	err = c.do(ctx, call{
		operation:   opLabelSample,
		method:      http.MethodPost,
		path:        pathLabel,
		auth:        &auth,
		body:        body,
		contentType: contentTypeJSON,
	}, &out)
	if err != nil {
		return LabelOutcome{}, err
	}

	if out.ROISHA256 != nil && *out.ROISHA256 != sub.ROISHA256 {
		c.logger.Warn("label response echoed a different sample",
			zap.String("sent", sub.ROISHA256),
			zap.String("received", *out.ROISHA256),
		)
	}

	outcome := LabelOutcome{Stored: *out.Stored}
	if out.Reason != nil {
		outcome.Reason = *out.Reason
	}
	return outcome, nil
}

// DeleteProgress removes every stored progress entry for the session.
func (c *Client) DeleteProgress(ctx context.Context, auth Auth) error {
	return c.do(ctx, call{
		operation: opDeleteProgress,
		method:    http.MethodPost,
		path:      pathProgressDelete,
		auth:      &auth,
	}, nil)
}

// ListProgress returns the most recent stored progress entries.
func (c *Client) ListProgress(ctx context.Context, auth Auth) ([]ProgressEntry, error) {
	var out []ProgressEntry
	err := c.do(ctx, call{
		operation: opListProgress,
		method:    http.MethodGet,
		path:      pathProgressList,
		auth:      &auth,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMe deletes the session and everything attached to it, withdrawing any
// donated samples.
func (c *Client) DeleteMe(ctx context.Context, auth Auth) (*DeleteMeResult, error) {
	var out DeleteMeResult
	err := c.do(ctx, call{
		operation: opDeleteMe,
		method:    http.MethodPost,
		path:      pathMeDelete,
		auth:      &auth,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Donate explicitly offers a photo for model improvement. The service keeps
// only the ROI and only with donate_for_improvement consent; a refusal comes
// back as a DonationOutcome with Stored=false.
func (c *Client) Donate(ctx context.Context, auth Auth, image io.Reader) (DonationOutcome, error) {
	body, contentType, err := multipartImage(photoFilename, image)
	if err != nil {
		return DonationOutcome{}, err
	}
	var out storedResponse
	err = c.do(ctx, call{
		operation:   opDonate,
		method:      http.MethodPost,
		path:        pathDonate,
		auth:        &auth,
		body:        body,
		contentType: contentType,
	}, &out)
	if err != nil {
		return DonationOutcome{}, err
	}

	outcome := DonationOutcome{Stored: *out.Stored}
	if out.Reason != nil {
		outcome.Reason = *out.Reason
	}
	if out.ROISHA256 != nil {
		outcome.ROISHA256 = *out.ROISHA256
	}
	return outcome, nil
}

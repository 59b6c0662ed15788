// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES API the client uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESClient sends plain emails from a fixed sender address.
type SESClient struct {
	api  SESService
	from string
}

// NewSESClient builds a client over the real SES API.
func NewSESClient(cfg aws.Config, fromEmail string) *SESClient {
	return NewSESClientWithAPI(ses.NewFromConfig(cfg), fromEmail)
}

// NewSESClientWithAPI builds a client over any SESService, e.g. a test double.
func NewSESClientWithAPI(api SESService, fromEmail string) *SESClient {
	return &SESClient{api: api, from: fromEmail}
}

// SendEmail sends subject and body to a single recipient and returns the
// SES message id.
func (s *SESClient) SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error) {
	body := &types.Body{Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")}}
	if htmlBody != "" {
		body.Html = &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")}
	}

	out, err := s.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

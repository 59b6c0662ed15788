package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// SES
// ==========================

func TestSESClient_SendEmail(t *testing.T) {
	var captured *ses.SendEmailInput
	client := NewSESClientWithAPI(&MockSESService{
		SendEmailFunc: func(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}, "noreply@vsme.guru")

	id, err := client.SendEmail(context.Background(), "jane@acme.no", "Report received", "Thanks", "")

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.NotNil(t, captured)
	assert.Equal(t, []string{"jane@acme.no"}, captured.Destination.ToAddresses)
	assert.Equal(t, "noreply@vsme.guru", aws.ToString(captured.Source))
	assert.Equal(t, "Report received", aws.ToString(captured.Message.Subject.Data))
	assert.Equal(t, "Thanks", aws.ToString(captured.Message.Body.Text.Data))
	assert.Nil(t, captured.Message.Body.Html)
}

func TestSESClient_SendEmailError(t *testing.T) {
	client := NewSESClientWithAPI(&MockSESService{
		SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		},
	}, "noreply@vsme.guru")

	_, err := client.SendEmail(context.Background(), "jane@acme.no", "s", "b", "<p>b</p>")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

// ==========================
// SNS
// ==========================

func TestSNSClient_PublishEvent(t *testing.T) {
	var captured *sns.PublishInput
	client := NewSNSClientWithAPI(&MockSNSService{
		PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("evt-1")}, nil
		},
	}, "arn:aws:sns:eu-north-1:123456789012:vsme-reports")

	id, err := client.PublishEvent(context.Background(), "report.submitted", "New VSME report",
		map[string]string{"organizationName": "Acme AS"})

	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	assert.Equal(t, "arn:aws:sns:eu-north-1:123456789012:vsme-reports", aws.ToString(captured.TopicArn))
	assert.Equal(t, "report.submitted", aws.ToString(captured.MessageAttributes["eventType"].StringValue))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &payload))
	assert.Equal(t, "Acme AS", payload["organizationName"])
}

func TestSNSClient_PublishError(t *testing.T) {
	client := NewSNSClientWithAPI(&MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("AuthorizationError")
		},
	}, "arn")

	_, err := client.PublishEvent(context.Background(), "report.submitted", "s", struct{}{})

	assert.Error(t, err)
}

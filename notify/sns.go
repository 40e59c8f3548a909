package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the slice of the SNS client the channel uses. Satisfied by
// *sns.Client; tests supply a fake.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig configures an SNS topic channel.
type SNSConfig struct {
	// Name identifies the channel in logs; defaults to "sns".
	Name string
	// TopicARN is the destination topic. Subscribers on the topic decide the
	// final transport (SMS, email, push).
	TopicARN string
	// Region overrides the default AWS region.
	Region string
	// AccessKey/SecretKey select static credentials. Both empty means the
	// default credential chain.
	AccessKey string
	SecretKey string
	// Kinds filters events; empty accepts everything.
	Kinds []Kind
}

// SNSChannel publishes notifications to an AWS SNS topic.
type SNSChannel struct {
	name     string
	client   SNSAPI
	topicARN string
	kinds    kindSet
}

// NewSNSChannel builds the AWS client from cfg and returns the channel.
func NewSNSChannel(ctx context.Context, cfg SNSConfig) (*SNSChannel, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("notify: sns: topic_arn is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("notify: sns: load aws config: %w", err)
	}

	return NewSNSChannelWithClient(cfg, sns.NewFromConfig(awsCfg)), nil
}

// NewSNSChannelWithClient wires a pre-built client; used by tests.
func NewSNSChannelWithClient(cfg SNSConfig, client SNSAPI) *SNSChannel {
	name := cfg.Name
	if name == "" {
		name = "sns"
	}
	return &SNSChannel{
		name:     name,
		client:   client,
		topicARN: cfg.TopicARN,
		kinds:    newKindSet(cfg.Kinds),
	}
}

func (c *SNSChannel) Name() string { return c.name }

func (c *SNSChannel) Accepts(kind Kind) bool { return c.kinds.accepts(kind) }

func (c *SNSChannel) Render(ev Event) (Message, error) {
	return renderText(ev), nil
}

func (c *SNSChannel) Send(ctx context.Context, msg Message) error {
	in := &sns.PublishInput{
		TopicArn: aws.String(c.topicARN),
		Message:  aws.String(msg.Body),
	}
	// SNS rejects subjects over 100 characters; skip rather than truncate.
	if msg.Subject != "" && len(msg.Subject) <= 100 {
		in.Subject = aws.String(msg.Subject)
	}
	if _, err := c.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish to %s: %w", c.topicARN, err)
	}
	return nil
}

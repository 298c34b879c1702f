// Package mainconfig holds the AWS wiring shared by the booking binaries.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/mindcare-booking/internal/config"
)

// LoadAWSConfig loads the SDK config for cfg.AWSRegion. Static keys win when
// both are set; otherwise the default credential chain applies.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	keyID, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if keyID != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}

// Clients bundles the AWS service clients the API server uses.
type Clients struct {
	Dynamo *dynamodb.Client
	SQS    *sqs.Client
	SES    *sesv2.Client
}

// NewClients builds the document table, event queue and email clients from
// one shared config. A non-empty endpoint (LocalStack) replaces the AWS
// endpoint for all three.
func NewClients(awsCfg aws.Config, endpoint string) Clients {
	var base *string
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		base = aws.String(endpoint)
	}
	return Clients{
		Dynamo: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
		SES: sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
	}
}

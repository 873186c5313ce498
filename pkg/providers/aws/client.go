package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/logging"
	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

// DefaultRegion is used when neither the flags nor the environment name one.
const DefaultRegion = "us-east-1"

// LoadConfig resolves ambient AWS configuration. Retries are disabled so
// every failed call surfaces immediately.
func LoadConfig(ctx context.Context, region string, log logr.Logger) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		config.WithLogger(NewSDKLogger(log)),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if log.V(2).Enabled() {
		opts = append(opts, config.WithClientLogMode(aws.LogRetries|aws.LogRequest))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, cloudauth.ErrAuth("failed to load AWS configuration").
			WithCause(err).
			WithProvider(cloudauth.ProviderAWS)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// NewFromConfig builds a Provider with real SDK clients. Additional options
// are applied after the clients are set.
func NewFromConfig(cfg aws.Config, opts ...ProviderOption) *Provider {
	stsClient := sts.NewFromConfig(cfg)
	base := []ProviderOption{
		WithIAMClient(iam.NewFromConfig(cfg)),
		WithSTSClient(stsClient),
		WithEKSClient(eks.NewFromConfig(cfg)),
		WithPresigner(sts.NewPresignClient(stsClient)),
		WithPresignerFactory(func(creds aws.CredentialsProvider) Presigner {
			c := cfg.Copy()
			c.Credentials = aws.NewCredentialsCache(creds)
			return sts.NewPresignClient(sts.NewFromConfig(c))
		}),
	}
	return New(append(base, opts...)...)
}

type sdkLogger struct {
	log logr.Logger
}

// NewSDKLogger adapts a logr.Logger to the smithy logging interface used by
// the AWS SDK. SDK debug output is logged at verbosity 2.
func NewSDKLogger(log logr.Logger) logging.Logger {
	return sdkLogger{log: log.WithName("aws-sdk")}
}

func (l sdkLogger) Logf(classification logging.Classification, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch classification {
	case logging.Warn:
		l.log.Info(msg, "classification", string(classification))
	default:
		l.log.V(2).Info(msg, "classification", string(classification))
	}
}

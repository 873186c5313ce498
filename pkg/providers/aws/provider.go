// Package aws implements the AWS side of eks-auth-sync: EKS bearer token
// derivation, tag-driven IAM identity scanning, and EKS cluster lookup.
package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

// IAMClient abstracts the IAM calls used for scanning.
type IAMClient interface {
	iam.ListRolesAPIClient
	iam.ListUsersAPIClient
	ListRoleTags(ctx context.Context, params *iam.ListRoleTagsInput, optFns ...func(*iam.Options)) (*iam.ListRoleTagsOutput, error)
	ListUserTags(ctx context.Context, params *iam.ListUserTagsInput, optFns ...func(*iam.Options)) (*iam.ListUserTagsOutput, error)
}

// STSClient abstracts the STS calls used for identity and role assumption.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Presigner presigns STS GetCallerIdentity. *sts.PresignClient satisfies it.
type Presigner interface {
	PresignGetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignerFactory builds a Presigner signing with the given credentials.
type PresignerFactory func(creds aws.CredentialsProvider) Presigner

// EKSClient abstracts the EKS calls used for cluster lookup.
type EKSClient interface {
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// Provider implements cloudauth.TokenProvider for EKS and hands out
// scanners over the same clients.
type Provider struct {
	iamClient    IAMClient
	stsClient    STSClient
	eksClient    EKSClient
	presigner    Presigner
	presignerFor PresignerFactory
	sessionName  string
	now          func() time.Time
	log          logr.Logger
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithIAMClient sets the IAM client.
func WithIAMClient(client IAMClient) ProviderOption {
	return func(p *Provider) {
		p.iamClient = client
	}
}

// WithSTSClient sets the STS client.
func WithSTSClient(client STSClient) ProviderOption {
	return func(p *Provider) {
		p.stsClient = client
	}
}

// WithEKSClient sets the EKS client.
func WithEKSClient(client EKSClient) ProviderOption {
	return func(p *Provider) {
		p.eksClient = client
	}
}

// WithPresigner sets the presigner used with ambient credentials.
func WithPresigner(ps Presigner) ProviderOption {
	return func(p *Provider) {
		p.presigner = ps
	}
}

// WithPresignerFactory sets how presigners for assumed role credentials
// are built.
func WithPresignerFactory(f PresignerFactory) ProviderOption {
	return func(p *Provider) {
		p.presignerFor = f
	}
}

// WithSessionName overrides the role session name used when assuming a role.
func WithSessionName(name string) ProviderOption {
	return func(p *Provider) {
		p.sessionName = sanitizeSessionName(name)
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) ProviderOption {
	return func(p *Provider) {
		p.log = l
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates a new AWS provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{
		sessionName: SessionName,
		now:         time.Now,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements cloudauth.Provider.
func (p *Provider) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderAWS
}

// Capabilities implements cloudauth.Provider.
func (p *Provider) Capabilities() []cloudauth.Capability {
	var caps []cloudauth.Capability
	if p.presigner != nil {
		caps = append(caps, cloudauth.CapabilityToken)
	}
	if p.iamClient != nil && p.stsClient != nil {
		caps = append(caps, cloudauth.CapabilityScan)
	}
	if p.eksClient != nil {
		caps = append(caps, cloudauth.CapabilityClusterLookup)
	}
	return caps
}

// HasCapability implements cloudauth.Provider.
func (p *Provider) HasCapability(cap cloudauth.Capability) bool {
	for _, c := range p.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

// Scanner returns a TagScanner for cluster over the provider's clients.
func (p *Provider) Scanner(cluster string) (*Scanner, error) {
	if p.iamClient == nil || p.stsClient == nil {
		return nil, cloudauth.ErrValidation("IAM and STS clients are required for scanning").
			WithProvider(cloudauth.ProviderAWS)
	}
	return NewScanner(p.iamClient, p.stsClient, cluster, WithScannerLogger(p.log)), nil
}

// Token derives an EKS bearer token for req.ClusterName. When
// req.AssumeRoleARN is set the role is assumed first and the token
// represents the role.
func (p *Provider) Token(ctx context.Context, req cloudauth.TokenRequest) (*cloudauth.TokenResponse, error) {
	if req.ClusterName == "" {
		return nil, cloudauth.ErrValidation("cluster name is required").
			WithProvider(cloudauth.ProviderAWS)
	}

	presigner := p.presigner
	if req.AssumeRoleARN != "" {
		creds, err := p.assumeRole(ctx, req.AssumeRoleARN)
		if err != nil {
			return nil, err
		}
		if p.presignerFor == nil {
			return nil, cloudauth.ErrValidation("no presigner factory configured for assumed roles").
				WithProvider(cloudauth.ProviderAWS)
		}
		presigner = p.presignerFor(creds)
	}
	if presigner == nil {
		return nil, cloudauth.ErrValidation("STS presigner not configured").
			WithProvider(cloudauth.ProviderAWS)
	}

	signedAt := p.now()
	signed, err := newUnsignedRequest(req.ClusterName).bind().presign(ctx, presigner)
	if err != nil {
		return nil, wrapAPIError(err, "failed to presign GetCallerIdentity", "sts:GetCallerIdentity").
			WithResource("eks:cluster", req.ClusterName)
	}

	p.log.V(1).Info("derived cluster token", logger.KeyCluster, req.ClusterName, "assumed_role", req.AssumeRoleARN)

	return &cloudauth.TokenResponse{
		Token:     EncodeToken(signed.URL),
		ExpiresAt: signedAt.Add(URLTimeout),
		TokenType: "Bearer",
	}, nil
}

func (p *Provider) assumeRole(ctx context.Context, roleARN string) (aws.CredentialsProvider, error) {
	if p.stsClient == nil {
		return nil, cloudauth.ErrValidation("STS client not configured").
			WithProvider(cloudauth.ProviderAWS)
	}

	out, err := p.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(p.sessionName),
	})
	if err != nil {
		return nil, cloudauth.ErrAuth("failed to assume role").
			WithCause(err).
			WithProvider(cloudauth.ProviderAWS).
			WithOperation("sts:AssumeRole").
			WithResource("iam:role", roleARN)
	}
	if out.Credentials == nil {
		return nil, cloudauth.ErrAuth("assume role returned no credentials").
			WithProvider(cloudauth.ProviderAWS).
			WithOperation("sts:AssumeRole").
			WithResource("iam:role", roleARN)
	}

	p.log.V(1).Info("assumed role", "role_arn", roleARN, "session_name", p.sessionName)

	return credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	), nil
}

// Cluster looks up the API endpoint and certificate authority of an EKS
// cluster.
func (p *Provider) Cluster(ctx context.Context, name string) (*cloudauth.ClusterEndpoint, error) {
	if p.eksClient == nil {
		return nil, cloudauth.ErrValidation("EKS client not configured").
			WithProvider(cloudauth.ProviderAWS)
	}

	out, err := p.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		return nil, wrapAPIError(err, "failed to describe cluster", "eks:DescribeCluster").
			WithResource("eks:cluster", name)
	}
	if out.Cluster == nil || aws.ToString(out.Cluster.Endpoint) == "" {
		return nil, cloudauth.ErrNotFound("eks:cluster", name).
			WithProvider(cloudauth.ProviderAWS).
			WithOperation("eks:DescribeCluster").
			WithDetail("reason", "cluster has no endpoint")
	}

	var caData []byte
	if out.Cluster.CertificateAuthority != nil {
		caData, err = base64.StdEncoding.DecodeString(aws.ToString(out.Cluster.CertificateAuthority.Data))
		if err != nil {
			return nil, cloudauth.ErrInternal("cluster certificate authority is not valid base64").
				WithCause(err).
				WithProvider(cloudauth.ProviderAWS).
				WithResource("eks:cluster", name)
		}
	}

	return &cloudauth.ClusterEndpoint{
		Name:     name,
		Endpoint: aws.ToString(out.Cluster.Endpoint),
		CAData:   caData,
	}, nil
}

// sanitizeSessionName removes invalid characters from role session name.
// AWS requires session names to match [\w+=,.@-]*
func sanitizeSessionName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '+' || r == '=' || r == ',' || r == '.' || r == '@' || r == '-' {
			result.WriteRune(r)
		}
	}
	sanitized := result.String()
	if sanitized == "" {
		return SessionName
	}
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

// wrapAPIError categorizes an SDK error by its API error code.
func wrapAPIError(err error, message, operation string) *cloudauth.CloudAuthError {
	category := cloudauth.ErrCategoryInternal

	var apiErr smithy.APIError
	var sendErr *smithyhttp.RequestSendError
	switch {
	case errors.As(err, &apiErr):
		switch code := apiErr.ErrorCode(); {
		case code == "AccessDenied" || code == "AccessDeniedException" || code == "UnauthorizedOperation":
			category = cloudauth.ErrCategoryPermission
		case code == "NoSuchEntity" || code == "ResourceNotFoundException" || strings.HasSuffix(code, ".NotFound"):
			category = cloudauth.ErrCategoryNotFound
		case code == "ExpiredToken" || code == "InvalidClientTokenId" || code == "UnrecognizedClientException":
			category = cloudauth.ErrCategoryAuth
		}
	case errors.As(err, &sendErr):
		category = cloudauth.ErrCategoryNetwork
	}

	return cloudauth.NewError(category, message).
		WithCause(err).
		WithProvider(cloudauth.ProviderAWS).
		WithOperation(operation)
}

package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

// MaxTags is the number of tags read per identity.
const MaxTags = 100

// Scanner lists IAM roles and users and classifies them by their
// eks/{cluster}/* tags. It is not safe for concurrent use.
type Scanner struct {
	iamClient IAMClient
	stsClient STSClient
	cluster   string
	accountID string
	log       logr.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScannerLogger sets the logger.
func WithScannerLogger(l logr.Logger) ScannerOption {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithAccountID presets the account ID so GetCallerIdentity is not called.
func WithAccountID(id string) ScannerOption {
	return func(s *Scanner) {
		s.accountID = id
	}
}

// NewScanner creates a Scanner for cluster.
func NewScanner(iamClient IAMClient, stsClient STSClient, cluster string, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		iamClient: iamClient,
		stsClient: stsClient,
		cluster:   cluster,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithValues(logger.KeyCluster, cluster)
	return s
}

// AccountID returns the caller's account ID, looking it up once.
func (s *Scanner) AccountID(ctx context.Context) (string, error) {
	if s.accountID != "" {
		return s.accountID, nil
	}
	out, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", wrapAPIError(err, "failed to get caller identity", "sts:GetCallerIdentity")
	}
	s.accountID = aws.ToString(out.Account)
	s.log.V(1).Info("found AWS account ID", "account_id", s.accountID)
	return s.accountID, nil
}

// ScanRoles lists every role under pathPrefix and returns the mappings of
// the tagged ones in listing order.
func (s *Scanner) ScanRoles(ctx context.Context, pathPrefix string) ([]cloudauth.Mapping, error) {
	s.log.V(1).Info("fetching IAM roles", logger.KeyPathPrefix, pathPrefix)

	var mappings []cloudauth.Mapping
	pager := iam.NewListRolesPaginator(s.iamClient, &iam.ListRolesInput{PathPrefix: aws.String(pathPrefix)})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError(err, "failed to list roles", "iam:ListRoles").
				WithDetail("path_prefix", pathPrefix)
		}
		for _, role := range page.Roles {
			name := aws.ToString(role.RoleName)
			arn, err := s.arn(ctx, "role", name)
			if err != nil {
				return nil, err
			}
			out, err := s.iamClient.ListRoleTags(ctx, &iam.ListRoleTagsInput{
				RoleName: aws.String(name),
				MaxItems: aws.Int32(MaxTags),
			})
			if err != nil {
				return nil, wrapAPIError(err, "failed to list role tags", "iam:ListRoleTags").
					WithResource("iam:role", name)
			}
			c := cloudauth.ClassifyRole(arn, s.clusterTags(out.Tags))
			if m, ok := s.collect(c, arn); ok {
				mappings = append(mappings, m)
			}
		}
	}
	return mappings, nil
}

// ScanUsers lists every user under pathPrefix and returns the mappings of
// the tagged ones in listing order.
func (s *Scanner) ScanUsers(ctx context.Context, pathPrefix string) ([]cloudauth.Mapping, error) {
	s.log.V(1).Info("fetching IAM users", logger.KeyPathPrefix, pathPrefix)

	var mappings []cloudauth.Mapping
	pager := iam.NewListUsersPaginator(s.iamClient, &iam.ListUsersInput{PathPrefix: aws.String(pathPrefix)})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError(err, "failed to list users", "iam:ListUsers").
				WithDetail("path_prefix", pathPrefix)
		}
		for _, user := range page.Users {
			name := aws.ToString(user.UserName)
			arn, err := s.arn(ctx, "user", name)
			if err != nil {
				return nil, err
			}
			out, err := s.iamClient.ListUserTags(ctx, &iam.ListUserTagsInput{
				UserName: aws.String(name),
				MaxItems: aws.Int32(MaxTags),
			})
			if err != nil {
				return nil, wrapAPIError(err, "failed to list user tags", "iam:ListUserTags").
					WithResource("iam:user", name)
			}
			c := cloudauth.ClassifyUser(arn, s.clusterTags(out.Tags))
			if m, ok := s.collect(c, arn); ok {
				mappings = append(mappings, m)
			}
		}
	}
	return mappings, nil
}

func (s *Scanner) arn(ctx context.Context, kind, name string) (string, error) {
	account, err := s.AccountID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arn:aws:iam::%s:%s/%s", account, kind, name), nil
}

func (s *Scanner) clusterTags(tags []types.Tag) cloudauth.ClusterTags {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return cloudauth.NewClusterTags(s.cluster, m)
}

func (s *Scanner) collect(c cloudauth.Classification, arn string) (cloudauth.Mapping, bool) {
	m, ok := c.Mapping()
	if !ok {
		s.log.V(2).Info("skipping identity", logger.KeyARN, arn, "reason", c.Reason())
		return cloudauth.Mapping{}, false
	}
	s.log.V(1).Info("found mapping", logger.KeyARN, arn, logger.KeyMappingType, m.Type.String(), "username", m.Username)
	return m, true
}

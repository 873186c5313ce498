package aws

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
)

const testAccountID = "123456789012"

type identity struct {
	name string
	path string
	tags []types.Tag
}

// iamServer is an in-memory IAM simulator. Listing returns identities in
// insertion order, pageSize per page.
type iamServer struct {
	mu sync.Mutex

	roles    []identity
	users    []identity
	pageSize int

	failOn        map[string]error
	tagListCounts map[string]int
	maxItemsSeen  []int32
}

func newIAMServer() *iamServer {
	return &iamServer{
		pageSize:      2,
		failOn:        make(map[string]error),
		tagListCounts: make(map[string]int),
	}
}

func (i *iamServer) addRole(path, name string, tags map[string]string) {
	i.roles = append(i.roles, identity{name: name, path: path, tags: toTags(tags)})
}

func (i *iamServer) addUser(path, name string, tags map[string]string) {
	i.users = append(i.users, identity{name: name, path: path, tags: toTags(tags)})
}

func (i *iamServer) produceError(operation string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failOn[operation] = err
}

func toTags(m map[string]string) []types.Tag {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]types.Tag, 0, len(m))
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return tags
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func page(all []identity, prefix string, marker *string, size int) ([]identity, *string) {
	var matched []identity
	for _, id := range all {
		if strings.HasPrefix(id.path, prefix) {
			matched = append(matched, id)
		}
	}
	start := 0
	if marker != nil {
		start, _ = strconv.Atoi(*marker)
	}
	end := start + size
	if end >= len(matched) {
		return matched[start:], nil
	}
	return matched[start:end], aws.String(strconv.Itoa(end))
}

func (i *iamServer) ListRoles(
	ctx context.Context,
	input *iam.ListRolesInput,
	opts ...func(*iam.Options),
) (*iam.ListRolesOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.failOn["ListRoles"]; err != nil {
		return nil, err
	}
	ids, next := page(i.roles, aws.ToString(input.PathPrefix), input.Marker, i.pageSize)
	out := &iam.ListRolesOutput{IsTruncated: next != nil, Marker: next}
	for _, id := range ids {
		out.Roles = append(out.Roles, types.Role{
			RoleName: aws.String(id.name),
			Path:     aws.String(id.path),
			Arn:      aws.String(fmt.Sprintf("arn:aws:iam::%s:role%s%s", testAccountID, id.path, id.name)),
		})
	}
	return out, nil
}

func (i *iamServer) ListUsers(
	ctx context.Context,
	input *iam.ListUsersInput,
	opts ...func(*iam.Options),
) (*iam.ListUsersOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.failOn["ListUsers"]; err != nil {
		return nil, err
	}
	ids, next := page(i.users, aws.ToString(input.PathPrefix), input.Marker, i.pageSize)
	out := &iam.ListUsersOutput{IsTruncated: next != nil, Marker: next}
	for _, id := range ids {
		out.Users = append(out.Users, types.User{
			UserName: aws.String(id.name),
			Path:     aws.String(id.path),
		})
	}
	return out, nil
}

func (i *iamServer) ListRoleTags(
	ctx context.Context,
	input *iam.ListRoleTagsInput,
	opts ...func(*iam.Options),
) (*iam.ListRoleTagsOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.failOn["ListRoleTags"]; err != nil {
		return nil, err
	}
	i.maxItemsSeen = append(i.maxItemsSeen, aws.ToInt32(input.MaxItems))
	i.tagListCounts["role/"+aws.ToString(input.RoleName)]++
	for _, id := range i.roles {
		if id.name == aws.ToString(input.RoleName) {
			return &iam.ListRoleTagsOutput{Tags: id.tags}, nil
		}
	}
	return nil, apiError("NoSuchEntity", "role not found")
}

func (i *iamServer) ListUserTags(
	ctx context.Context,
	input *iam.ListUserTagsInput,
	opts ...func(*iam.Options),
) (*iam.ListUserTagsOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.failOn["ListUserTags"]; err != nil {
		return nil, err
	}
	i.maxItemsSeen = append(i.maxItemsSeen, aws.ToInt32(input.MaxItems))
	i.tagListCounts["user/"+aws.ToString(input.UserName)]++
	for _, id := range i.users {
		if id.name == aws.ToString(input.UserName) {
			return &iam.ListUserTagsOutput{Tags: id.tags}, nil
		}
	}
	return nil, apiError("NoSuchEntity", "user not found")
}

type stsServer struct {
	mu sync.Mutex

	account        string
	identityCalls  int
	identityErr    error
	assumeErr      error
	assumedRoles   []string
	assumedSession []string
}

func newSTSServer() *stsServer {
	return &stsServer{account: testAccountID}
}

func (s *stsServer) GetCallerIdentity(
	ctx context.Context,
	input *sts.GetCallerIdentityInput,
	opts ...func(*sts.Options),
) (*sts.GetCallerIdentityOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identityCalls++
	if s.identityErr != nil {
		return nil, s.identityErr
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(s.account)}, nil
}

func (s *stsServer) AssumeRole(
	ctx context.Context,
	input *sts.AssumeRoleInput,
	opts ...func(*sts.Options),
) (*sts.AssumeRoleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.assumeErr != nil {
		return nil, s.assumeErr
	}
	s.assumedRoles = append(s.assumedRoles, aws.ToString(input.RoleArn))
	s.assumedSession = append(s.assumedSession, aws.ToString(input.RoleSessionName))
	expiry := time.Now().Add(time.Hour)
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("ASIAASSUMED"),
			SecretAccessKey: aws.String("assumed-secret"),
			SessionToken:    aws.String("assumed-session"),
			Expiration:      &expiry,
		},
	}, nil
}

type fakePresigner struct {
	url string
	err error
}

func (f *fakePresigner) PresignGetCallerIdentity(
	ctx context.Context,
	params *sts.GetCallerIdentityInput,
	optFns ...func(*sts.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url, Method: "GET"}, nil
}

type eksServer struct {
	clusters map[string]*eks.DescribeClusterOutput
}

func (e *eksServer) DescribeCluster(
	ctx context.Context,
	input *eks.DescribeClusterInput,
	opts ...func(*eks.Options),
) (*eks.DescribeClusterOutput, error) {
	out, ok := e.clusters[aws.ToString(input.Name)]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "No cluster found")
	}
	return out, nil
}

package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

func userTags(cluster, username, groups string) map[string]string {
	return map[string]string{
		cloudauth.TagKey(cluster, cloudauth.TagUsername): username,
		cloudauth.TagKey(cluster, cloudauth.TagGroups):   groups,
	}
}

func userRoleTags(cluster, username, groups string) map[string]string {
	tags := userTags(cluster, username, groups)
	tags[cloudauth.TagKey(cluster, cloudauth.TagType)] = "user"
	return tags
}

func seededIAM() *iamServer {
	srv := newIAMServer()
	srv.addUser("/", "pasi", nil)
	srv.addUser("/", "seppo", userTags("testing", "k8s-seppo", "backend"))
	srv.addUser("/", "matti", userTags("production", "k8s-matti", "backend,frontend"))
	srv.addUser("/alt/", "teppo", userTags("production", "k8s-teppo", "admin"))
	srv.addUser("/", "kalle", map[string]string{"eks/production/groups": "admin"})

	srv.addRole("/", "testing-developers", userRoleTags("testing", "k8s-developers", "k8s-developers,viewer"))
	srv.addRole("/", "developers", userRoleTags("production", "k8s-developers", "k8s-developers,viewer"))
	srv.addRole("/", "admins", userRoleTags("production", "k8s-admins", "k8s-admins"))
	srv.addRole("/", "default-eks-node", map[string]string{"eks/production/type": "node"})
	srv.addRole("/", "unknown-type", map[string]string{"eks/production/type": "robot", "eks/production/username": "r"})
	return srv
}

func TestScanUsers(t *testing.T) {
	srv := seededIAM()
	stsSrv := newSTSServer()

	testingScanner := NewScanner(srv, stsSrv, "testing")
	got, err := testingScanner.ScanUsers(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []cloudauth.Mapping{
		cloudauth.NewMapping("arn:aws:iam::123456789012:user/seppo", cloudauth.UserToUser, "k8s-seppo", []string{"backend"}),
	}, got)

	productionScanner := NewScanner(srv, stsSrv, "production")
	got, err = productionScanner.ScanUsers(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []cloudauth.Mapping{
		cloudauth.NewMapping("arn:aws:iam::123456789012:user/matti", cloudauth.UserToUser, "k8s-matti", []string{"backend", "frontend"}),
		cloudauth.NewMapping("arn:aws:iam::123456789012:user/teppo", cloudauth.UserToUser, "k8s-teppo", []string{"admin"}),
	}, got)
}

func TestScanUsersPathPrefix(t *testing.T) {
	s := NewScanner(seededIAM(), newSTSServer(), "production")
	got, err := s.ScanUsers(context.Background(), "/alt/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "arn:aws:iam::123456789012:user/teppo", got[0].ARN)
}

func TestScanRoles(t *testing.T) {
	srv := seededIAM()
	stsSrv := newSTSServer()

	got, err := NewScanner(srv, stsSrv, "testing").ScanRoles(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []cloudauth.Mapping{
		cloudauth.NewMapping("arn:aws:iam::123456789012:role/testing-developers", cloudauth.RoleToUser, "k8s-developers", []string{"k8s-developers", "viewer"}),
	}, got)

	got, err = NewScanner(srv, stsSrv, "production").ScanRoles(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []cloudauth.Mapping{
		cloudauth.NewMapping("arn:aws:iam::123456789012:role/developers", cloudauth.RoleToUser, "k8s-developers", []string{"k8s-developers", "viewer"}),
		cloudauth.NewMapping("arn:aws:iam::123456789012:role/admins", cloudauth.RoleToUser, "k8s-admins", []string{"k8s-admins"}),
		cloudauth.NewMapping("arn:aws:iam::123456789012:role/default-eks-node", cloudauth.RoleToNode, "", nil),
	}, got)
}

func TestScanReadsEveryPageAndMemoizesAccount(t *testing.T) {
	srv := seededIAM()
	srv.pageSize = 1
	stsSrv := newSTSServer()
	s := NewScanner(srv, stsSrv, "production")

	roles, err := s.ScanRoles(context.Background(), "/")
	require.NoError(t, err)
	users, err := s.ScanUsers(context.Background(), "/")
	require.NoError(t, err)

	assert.Len(t, roles, 3)
	assert.Len(t, users, 2)
	assert.Len(t, srv.tagListCounts, 10, "tags of every identity are read once")
	assert.Equal(t, 1, stsSrv.identityCalls)
	for _, n := range srv.maxItemsSeen {
		assert.Equal(t, int32(MaxTags), n)
	}
}

func TestScanWithPresetAccount(t *testing.T) {
	stsSrv := newSTSServer()
	s := NewScanner(seededIAM(), stsSrv, "production", WithAccountID("999999999999"))
	got, err := s.ScanUsers(context.Background(), "/alt/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "arn:aws:iam::999999999999:user/teppo", got[0].ARN)
	assert.Equal(t, 0, stsSrv.identityCalls)
}

func TestScanErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		scan      func(*Scanner) ([]cloudauth.Mapping, error)
		category  cloudauth.ErrorCategory
	}{
		{
			name:      "list roles denied",
			operation: "ListRoles",
			scan:      func(s *Scanner) ([]cloudauth.Mapping, error) { return s.ScanRoles(context.Background(), "/") },
			category:  cloudauth.ErrCategoryPermission,
		},
		{
			name:      "role tags denied",
			operation: "ListRoleTags",
			scan:      func(s *Scanner) ([]cloudauth.Mapping, error) { return s.ScanRoles(context.Background(), "/") },
			category:  cloudauth.ErrCategoryPermission,
		},
		{
			name:      "list users denied",
			operation: "ListUsers",
			scan:      func(s *Scanner) ([]cloudauth.Mapping, error) { return s.ScanUsers(context.Background(), "/") },
			category:  cloudauth.ErrCategoryPermission,
		},
		{
			name:      "user tags denied",
			operation: "ListUserTags",
			scan:      func(s *Scanner) ([]cloudauth.Mapping, error) { return s.ScanUsers(context.Background(), "/") },
			category:  cloudauth.ErrCategoryPermission,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := seededIAM()
			srv.produceError(tc.operation, apiError("AccessDenied", "not authorized"))

			got, err := tc.scan(NewScanner(srv, newSTSServer(), "production"))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, cloudauth.IsCategory(err, tc.category))
			assert.Equal(t, "iam:"+tc.operation, cloudauth.GetErrorOperation(err))
		})
	}
}

func TestScanCallerIdentityError(t *testing.T) {
	stsSrv := newSTSServer()
	stsSrv.identityErr = apiError("ExpiredToken", "token expired")

	got, err := NewScanner(seededIAM(), stsSrv, "production").ScanUsers(context.Background(), "/")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, cloudauth.IsCategory(err, cloudauth.ErrCategoryAuth))
}

func TestScanEmptyListing(t *testing.T) {
	got, err := NewScanner(newIAMServer(), newSTSServer(), "production").ScanRoles(context.Background(), "/")
	require.NoError(t, err)
	assert.Empty(t, got)
}

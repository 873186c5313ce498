package cloudauth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloudAuthErrorMessage(t *testing.T) {
	cause := errors.New("AccessDenied")
	err := ErrPermission("failed to list role tags").
		WithProvider(ProviderAWS).
		WithOperation("iam:ListRoleTags").
		WithResource("iam:role", "admins").
		WithDetail("cluster", "test").
		WithCause(cause)

	assert.Equal(t, "[aws:permission] failed to list role tags (iam:role admins) cluster=test: AccessDenied", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ProviderAWS, GetErrorProvider(err))
	assert.Equal(t, "iam:ListRoleTags", GetErrorOperation(err))
}

func TestCloudAuthErrorCategoryMatching(t *testing.T) {
	err := fmt.Errorf("sync: %w", ErrNotFound("configmap", "kube-system/aws-auth"))

	assert.True(t, IsCategory(err, ErrCategoryNotFound))
	assert.False(t, IsCategory(err, ErrCategoryConflict))
	assert.ErrorIs(t, err, ErrNotFound("other", "x"))
	assert.False(t, IsCategory(errors.New("plain"), ErrCategoryNotFound))
	assert.Equal(t, CloudProvider(""), GetErrorProvider(errors.New("plain")))
}

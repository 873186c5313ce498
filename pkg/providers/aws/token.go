package aws

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

const (
	// URLTimeout is how long a presigned token URL stays valid.
	URLTimeout = 60 * time.Second

	// TokenPrefix marks a bearer token as a presigned STS request.
	TokenPrefix = "k8s-aws-v1."

	// ClusterIDHeader binds a token to one cluster. It is part of the
	// signed headers, so the token cannot be replayed to another cluster.
	ClusterIDHeader = "x-k8s-aws-id"

	// SessionName is the role session name used when assuming a role.
	SessionName = "EKSGetTokenAuth"

	expiresHeader = "X-Amz-Expires"
)

// unsignedRequest is a GetCallerIdentity request that still carries the
// cluster name as a request parameter. It cannot be presigned directly.
type unsignedRequest struct {
	clusterName string
}

func newUnsignedRequest(clusterName string) unsignedRequest {
	return unsignedRequest{clusterName: clusterName}
}

// bind moves the cluster name out of the request parameters and into the
// headers covered by the signature.
func (r unsignedRequest) bind() boundRequest {
	return boundRequest{
		headers: map[string]string{
			ClusterIDHeader: r.clusterName,
			expiresHeader:   strconv.Itoa(int(URLTimeout / time.Second)),
		},
	}
}

// boundRequest has no signable cluster parameter left; the cluster identity
// travels only in headers.
type boundRequest struct {
	headers map[string]string
}

func (b boundRequest) presign(ctx context.Context, presigner Presigner) (*v4.PresignedHTTPRequest, error) {
	return presigner.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}, func(po *sts.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions, func(o *sts.Options) {
			for k, v := range b.headers {
				o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue(k, v))
			}
		})
	})
}

// EncodeToken turns a presigned URL into a bearer token.
func EncodeToken(presignedURL string) string {
	return TokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(presignedURL))
}

// DecodeToken returns the presigned URL carried by a bearer token.
func DecodeToken(token string) (string, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", cloudauth.ErrValidation("token does not start with " + TokenPrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, TokenPrefix))
	if err != nil {
		return "", cloudauth.ErrValidation("token is not unpadded base64url").WithCause(err)
	}
	return string(raw), nil
}

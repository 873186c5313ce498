// Package kubernetes writes the aws-auth ConfigMap to a cluster.
package kubernetes

import (
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

// ConnectMode selects where cluster credentials come from.
type ConnectMode string

const (
	// ModeKubeconfig uses the ambient kubeconfig.
	ModeKubeconfig ConnectMode = "kubeconfig"
	// ModeInCluster uses the pod's service account.
	ModeInCluster ConnectMode = "in-cluster"
	// ModeDirect uses an explicit endpoint, bearer token and CA.
	ModeDirect ConnectMode = "direct"
)

// ConnectOptions describes how to reach the cluster.
type ConnectOptions struct {
	Mode ConnectMode

	// Kubeconfig and Context override the default loading rules in
	// ModeKubeconfig.
	Kubeconfig string
	Context    string

	// Endpoint, BearerToken and CAData are required in ModeDirect.
	Endpoint    string
	BearerToken string
	CAData      []byte
}

// NewRESTConfig builds a client configuration for opts.
func NewRESTConfig(opts ConnectOptions) (*rest.Config, error) {
	switch opts.Mode {
	case ModeInCluster:
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, cloudauth.ErrAuth("failed to load in-cluster configuration").
				WithCause(err).
				WithProvider(cloudauth.ProviderKubernetes)
		}
		return cfg, nil

	case ModeDirect:
		if opts.Endpoint == "" || opts.BearerToken == "" {
			return nil, cloudauth.ErrValidation("endpoint and bearer token are required").
				WithProvider(cloudauth.ProviderKubernetes)
		}
		return &rest.Config{
			Host:        opts.Endpoint,
			BearerToken: opts.BearerToken,
			TLSClientConfig: rest.TLSClientConfig{
				CAData: opts.CAData,
			},
		}, nil

	case ModeKubeconfig, "":
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		if opts.Kubeconfig != "" {
			rules.ExplicitPath = opts.Kubeconfig
		}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: opts.Context}
		cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
		if err != nil {
			return nil, cloudauth.ErrAuth("failed to load kubeconfig").
				WithCause(err).
				WithProvider(cloudauth.ProviderKubernetes)
		}
		return cfg, nil

	default:
		return nil, cloudauth.ErrValidation("unknown connect mode: " + string(opts.Mode)).
			WithProvider(cloudauth.ProviderKubernetes)
	}
}

// NewClientset creates a typed clientset from cfg.
func NewClientset(cfg *rest.Config) (kubernetes.Interface, error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, cloudauth.ErrInternal("failed to create Kubernetes client").
			WithCause(err).
			WithProvider(cloudauth.ProviderKubernetes)
	}
	return cs, nil
}

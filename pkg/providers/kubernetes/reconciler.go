package kubernetes

import (
	"context"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "eks-auth-sync"
)

// Reconciler writes the authorization document to the cluster, replacing
// whatever is there. It implements cloudauth.DocumentApplier.
type Reconciler struct {
	client    kubernetes.Interface
	namespace string
	log       logr.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNamespace overrides the target namespace.
func WithNamespace(ns string) ReconcilerOption {
	return func(r *Reconciler) {
		r.namespace = ns
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.log = l
	}
}

// NewReconciler creates a Reconciler over client.
func NewReconciler(client kubernetes.Interface, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		client:    client,
		namespace: cloudauth.AuthConfigMapNamespace,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements cloudauth.Provider.
func (r *Reconciler) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderKubernetes
}

// Capabilities implements cloudauth.Provider.
func (r *Reconciler) Capabilities() []cloudauth.Capability {
	return []cloudauth.Capability{cloudauth.CapabilityApply}
}

// HasCapability implements cloudauth.Provider.
func (r *Reconciler) HasCapability(cap cloudauth.Capability) bool {
	return cap == cloudauth.CapabilityApply
}

// ConfigMapFor renders doc as a ConfigMap in namespace.
func ConfigMapFor(doc *cloudauth.AuthDocument, namespace string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      doc.Name,
			Namespace: namespace,
			Labels: map[string]string{
				managedByLabel: managedByValue,
			},
		},
		Data: doc.Data(),
	}
}

// Apply replaces the ConfigMap if it exists and creates it otherwise. The
// replacement carries no resource version, so the last writer wins.
func (r *Reconciler) Apply(ctx context.Context, doc *cloudauth.AuthDocument) error {
	cm := ConfigMapFor(doc, r.namespace)
	cms := r.client.CoreV1().ConfigMaps(r.namespace)
	log := r.log.WithValues(logger.KeyNamespace, r.namespace, logger.KeyName, doc.Name)

	_, err := cms.Get(ctx, doc.Name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		if _, err := cms.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return wrapStatusError(err, "failed to create ConfigMap", "create", r.namespace, doc.Name)
		}
		log.Info("created ConfigMap")
		return nil
	}
	if err != nil {
		return wrapStatusError(err, "failed to read ConfigMap", "get", r.namespace, doc.Name)
	}

	if _, err := cms.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return wrapStatusError(err, "failed to replace ConfigMap", "update", r.namespace, doc.Name)
	}
	log.Info("replaced ConfigMap")
	return nil
}

// wrapStatusError keeps the API error as cause so k8serrors predicates
// still match through errors.As.
func wrapStatusError(err error, message, verb, namespace, name string) *cloudauth.CloudAuthError {
	id := namespace + "/" + name
	var wrapped *cloudauth.CloudAuthError
	switch {
	case k8serrors.IsConflict(err), k8serrors.IsAlreadyExists(err):
		wrapped = cloudauth.ErrConflict("configmap", id).WithDetail("reason", message)
	case k8serrors.IsForbidden(err), k8serrors.IsUnauthorized(err):
		wrapped = cloudauth.NewError(cloudauth.ErrCategoryPermission, message)
	case k8serrors.IsNotFound(err):
		wrapped = cloudauth.NewError(cloudauth.ErrCategoryNotFound, message)
	case k8serrors.IsServerTimeout(err), k8serrors.IsTimeout(err), k8serrors.IsServiceUnavailable(err):
		wrapped = cloudauth.NewError(cloudauth.ErrCategoryNetwork, message)
	default:
		wrapped = cloudauth.NewError(cloudauth.ErrCategoryInternal, message)
	}
	return wrapped.
		WithCause(err).
		WithProvider(cloudauth.ProviderKubernetes).
		WithOperation(verb).
		WithResource("configmap", id)
}

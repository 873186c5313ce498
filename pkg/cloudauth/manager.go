package cloudauth

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
)

// Manager runs synchronization: scan identities, build the document, and
// optionally apply it.
type Manager struct {
	scanner  IdentityScanner
	appliers ApplierFactory
	recorder SyncRecorder
	log      logr.Logger
	newRunID func() string
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithScanner sets the identity scanner.
func WithScanner(s IdentityScanner) ManagerOption {
	return func(m *Manager) {
		m.scanner = s
	}
}

// WithApplierFactory sets how the cluster applier is opened.
func WithApplierFactory(f ApplierFactory) ManagerOption {
	return func(m *Manager) {
		m.appliers = f
	}
}

// WithRecorder sets a recorder notified after every run.
func WithRecorder(r SyncRecorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates a new Manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:      logr.Discard(),
		newRunID: GenerateRunID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateRunID returns a unique identifier for a run.
func GenerateRunID() string {
	return uuid.New().String()
}

// Sync performs one synchronization run. Roles are scanned before users and
// their mappings come first. Without opts.Update nothing is written. With an
// empty scan and no opts.AllowEmpty the cluster is never contacted.
func (m *Manager) Sync(ctx context.Context, opts SyncOptions) (result *SyncResult, err error) {
	start := time.Now()
	result = &SyncResult{RunID: m.newRunID()}
	log := m.log.WithValues(logger.KeyRunID, result.RunID)

	defer func() {
		result.Duration = time.Since(start)
		log.V(1).Info("sync finished", logger.KeyDuration, result.Duration, "error", err != nil)
		if m.recorder != nil {
			m.recorder.RecordSync(result, err)
		}
	}()

	if m.scanner == nil {
		return result, ErrValidation("no identity scanner configured").WithOperation("sync")
	}

	var mappings []Mapping
	if opts.RolesPath != "" {
		log.V(1).Info("scanning IAM roles", logger.KeyPathPrefix, opts.RolesPath)
		roles, err := m.scanner.ScanRoles(ctx, opts.RolesPath)
		if err != nil {
			return result, err
		}
		log.Info("scanned IAM roles", logger.KeyPathPrefix, opts.RolesPath, logger.KeyMappings, len(roles))
		mappings = append(mappings, roles...)
	}
	if opts.UsersPath != "" {
		log.V(1).Info("scanning IAM users", logger.KeyPathPrefix, opts.UsersPath)
		users, err := m.scanner.ScanUsers(ctx, opts.UsersPath)
		if err != nil {
			return result, err
		}
		log.Info("scanned IAM users", logger.KeyPathPrefix, opts.UsersPath, logger.KeyMappings, len(users))
		mappings = append(mappings, users...)
	}
	result.Mappings = mappings

	doc, err := ToDocument(mappings)
	if err != nil {
		return result, err
	}
	result.Document = doc

	if !opts.Update {
		return result, nil
	}

	if len(mappings) == 0 {
		if !opts.AllowEmpty {
			log.Info("no mappings found, skipping update")
			result.Skipped = true
			return result, nil
		}
		log.Info("no mappings found, existing entries will be removed")
	}

	if m.appliers == nil {
		return result, ErrValidation("no document applier configured").WithOperation("sync")
	}
	applier, err := m.appliers(ctx)
	if err != nil {
		return result, err
	}
	if err := applier.Apply(ctx, doc); err != nil {
		return result, err
	}
	result.Applied = true
	log.Info("updated authorization document", logger.KeyName, doc.Name, logger.KeyMappings, len(mappings))

	return result, nil
}

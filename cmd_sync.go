package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/anirudhbiyani/eks-auth-sync/internal/config"
	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
	"github.com/anirudhbiyani/eks-auth-sync/internal/metrics"
	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
	awsprovider "github.com/anirudhbiyani/eks-auth-sync/pkg/providers/aws"
	k8sprovider "github.com/anirudhbiyani/eks-auth-sync/pkg/providers/kubernetes"
)

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan IAM tags and print or apply the aws-auth mappings",
		Long: `Scan IAM roles and users under the given path prefixes for
eks/{cluster}/* tags. Without --update the aws-auth entries are printed.
With --update they replace the mapUsers and mapRoles of kube-system/aws-auth.

Cluster credentials come from the kubeconfig by default, from the pod's
service account with --in-cluster, or from an EKS token derived from the
AWS credentials with --auth-with-aws. --auth-with-aws wins over --in-cluster.`,
		Example: `  # Print mappings for roles and users under /eks/
  eks-auth-sync sync --cluster production --scan-roles-path /eks/ --scan-users-path /eks/

  # Apply from a CronJob running in the cluster
  eks-auth-sync sync --cluster production --scan-roles-path / --update --in-cluster`,
		Args: cobra.NoArgs,
		RunE: a.runSync,
	}
	addSyncFlags(cmd)
	return cmd
}

func addSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("cluster", "", "EKS cluster name (required)")
	f.String("scan-roles-path", "", "IAM path prefix of roles to scan, e.g. /eks/")
	f.String("scan-users-path", "", "IAM path prefix of users to scan, e.g. /eks/")
	f.Bool("update", false, "write the mappings to the aws-auth ConfigMap")
	f.Bool("allow-empty", false, "allow --update to write an empty mapping set")
	f.Bool("in-cluster", false, "use the in-cluster service account")
	f.Bool("auth-with-aws", false, "authenticate to the cluster with an EKS token from AWS credentials")
	f.String("auth-role-arn", "", "IAM role to assume before deriving the EKS token")
	f.String("kubeconfig", "", "path to the kubeconfig file")
	f.String("context", "", "kubeconfig context to use")
	f.StringP("output", "o", "yaml", "print format without --update: yaml, json")
	f.String("metrics-pushgateway", "", "Prometheus Pushgateway URL to push run metrics to")
	f.String("metrics-job", "eks-auth-sync", "Pushgateway job name")
}

func (a *app) runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags(), configPath(cmd))
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: a.stderr})
	if err != nil {
		return err
	}
	logger.RedirectKlog(log)
	log = log.WithValues(logger.KeyCluster, cfg.Cluster)

	provider, err := a.loadAWS(ctx, cfg.Region, log)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	scanner, err := provider.Scanner(cfg.Cluster)
	if err != nil {
		return err
	}

	var recorder *metrics.SyncMetrics
	if cfg.MetricsPushgateway != "" {
		recorder = metrics.New()
	}

	manager := cloudauth.NewManager(
		cloudauth.WithScanner(scanner),
		cloudauth.WithApplierFactory(a.applierFactory(cfg, provider, log)),
		cloudauth.WithRecorder(recorder),
		cloudauth.WithLogger(log),
	)

	result, syncErr := manager.Sync(ctx, cloudauth.SyncOptions{
		RolesPath:  cfg.ScanRolesPath,
		UsersPath:  cfg.ScanUsersPath,
		Update:     cfg.Update,
		AllowEmpty: cfg.AllowEmpty,
	})

	if err := recorder.Push(ctx, cfg.MetricsPushgateway, cfg.MetricsJob, cfg.Cluster); err != nil {
		log.Error(err, "failed to push metrics", "pushgateway", cfg.MetricsPushgateway)
	}

	if syncErr != nil {
		return syncErr
	}
	if cfg.Update {
		return nil
	}
	return printMappings(a.stdout, cfg.Output, result.Mappings)
}

// applierFactory defers cluster connection until the manager actually needs
// to write.
func (a *app) applierFactory(cfg *config.Config, provider *awsprovider.Provider, log logr.Logger) cloudauth.ApplierFactory {
	return func(ctx context.Context) (cloudauth.DocumentApplier, error) {
		opts, err := connectOptions(ctx, cfg, provider)
		if err != nil {
			return nil, err
		}
		restCfg, err := k8sprovider.NewRESTConfig(opts)
		if err != nil {
			return nil, err
		}
		client, err := a.newClientset(restCfg)
		if err != nil {
			return nil, err
		}
		log.V(1).Info("connected to cluster", "mode", string(opts.Mode), "host", restCfg.Host)
		return k8sprovider.NewReconciler(client, k8sprovider.WithLogger(log)), nil
	}
}

func connectOptions(ctx context.Context, cfg *config.Config, provider *awsprovider.Provider) (k8sprovider.ConnectOptions, error) {
	switch {
	case cfg.AuthWithAWS:
		endpoint, err := provider.Cluster(ctx, cfg.Cluster)
		if err != nil {
			return k8sprovider.ConnectOptions{}, err
		}
		token, err := provider.Token(ctx, cloudauth.TokenRequest{
			ClusterName:   cfg.Cluster,
			AssumeRoleARN: cfg.AuthRoleARN,
		})
		if err != nil {
			return k8sprovider.ConnectOptions{}, err
		}
		return k8sprovider.ConnectOptions{
			Mode:        k8sprovider.ModeDirect,
			Endpoint:    endpoint.Endpoint,
			BearerToken: token.Token,
			CAData:      endpoint.CAData,
		}, nil

	case cfg.InCluster:
		return k8sprovider.ConnectOptions{Mode: k8sprovider.ModeInCluster}, nil

	default:
		return k8sprovider.ConnectOptions{
			Mode:       k8sprovider.ModeKubeconfig,
			Kubeconfig: cfg.Kubeconfig,
			Context:    cfg.Context,
		}, nil
	}
}

func printMappings(w io.Writer, format string, mappings []cloudauth.Mapping) error {
	if format == "json" {
		entries := make([]cloudauth.Entry, 0, len(mappings))
		for _, m := range mappings {
			entries = append(entries, m.Entry())
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	out, err := cloudauth.MarshalEntries(mappings)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

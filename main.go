// Package main is the entry point for the eks-auth-sync CLI.
//
// eks-auth-sync scans IAM roles and users for eks/{cluster}/* tags and
// writes the matching identity mappings to the cluster's aws-auth ConfigMap.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/anirudhbiyani/eks-auth-sync/internal/config"
	awsprovider "github.com/anirudhbiyani/eks-auth-sync/pkg/providers/aws"
	k8sprovider "github.com/anirudhbiyani/eks-auth-sync/pkg/providers/kubernetes"
)

const exitError = 1

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

func main() {
	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := newApp(os.Stdout, os.Stderr).rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitError)
	}
}

// app holds the process-wide dependencies of every command. Tests replace
// the constructors to run commands against fakes.
type app struct {
	stdout io.Writer
	stderr io.Writer

	loadAWS      func(ctx context.Context, region string, log logr.Logger) (*awsprovider.Provider, error)
	newClientset func(cfg *rest.Config) (kubernetes.Interface, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		loadAWS: func(ctx context.Context, region string, log logr.Logger) (*awsprovider.Provider, error) {
			cfg, err := awsprovider.LoadConfig(ctx, region, log)
			if err != nil {
				return nil, err
			}
			return awsprovider.NewFromConfig(cfg, awsprovider.WithLogger(log)), nil
		},
		newClientset: k8sprovider.NewClientset,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eks-auth-sync",
		Short: "Sync tagged IAM users and roles into the EKS aws-auth ConfigMap",
		Long: `eks-auth-sync scans IAM roles and users for the tags

  eks/{cluster}/username   Kubernetes username
  eks/{cluster}/groups     comma separated Kubernetes groups
  eks/{cluster}/type       roles only: "user" (default) or "node"

and prints the resulting aws-auth entries, or with --update writes them to
the kube-system/aws-auth ConfigMap.

Every flag can also be set through an EKS_AUTH_SYNC_* environment variable
or a YAML config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runSync,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.String("config", config.ConfigFileFromEnv(), "YAML config file (env EKS_AUTH_SYNC_CONFIG)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.String("region-name", "", "AWS region (default from the AWS environment)")

	addSyncFlags(root)

	root.AddCommand(a.syncCmd())
	root.AddCommand(a.tokenCmd())
	root.AddCommand(a.versionCmd())
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

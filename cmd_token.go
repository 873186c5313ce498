package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientauthv1beta1 "k8s.io/client-go/pkg/apis/clientauthentication/v1beta1"

	"github.com/anirudhbiyani/eks-auth-sync/internal/config"
	"github.com/anirudhbiyani/eks-auth-sync/internal/logger"
	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

const execCredentialAPIVersion = "client.authentication.k8s.io/v1beta1"

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an EKS bearer token as a kubectl ExecCredential",
		Long: `Derive an EKS bearer token from the current AWS credentials, or from
--auth-role-arn when set, and print it as an ExecCredential for use as a
kubeconfig exec plugin.`,
		Example: `  eks-auth-sync token --cluster production
  eks-auth-sync token --cluster production --auth-role-arn arn:aws:iam::123456789012:role/deployer`,
		Args: cobra.NoArgs,
		RunE: a.runToken,
	}
	cmd.Flags().String("cluster", "", "EKS cluster name (required)")
	cmd.Flags().String("auth-role-arn", "", "IAM role to assume before deriving the token")
	return cmd
}

func (a *app) runToken(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags(), configPath(cmd))
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: a.stderr})
	if err != nil {
		return err
	}

	provider, err := a.loadAWS(ctx, cfg.Region, log)
	if err != nil {
		return err
	}
	token, err := provider.Token(ctx, cloudauth.TokenRequest{
		ClusterName:   cfg.Cluster,
		AssumeRoleARN: cfg.AuthRoleARN,
	})
	if err != nil {
		return err
	}

	cred := clientauthv1beta1.ExecCredential{
		TypeMeta: metav1.TypeMeta{
			APIVersion: execCredentialAPIVersion,
			Kind:       "ExecCredential",
		},
		Status: &clientauthv1beta1.ExecCredentialStatus{
			Token:               token.Token,
			ExpirationTimestamp: &metav1.Time{Time: token.ExpiresAt},
		},
	}
	return json.NewEncoder(a.stdout).Encode(cred)
}

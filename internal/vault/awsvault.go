package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	appconfig "github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// AWSVault implements SecretVault on AWS Secrets Manager. PutSecretValue on
// an existing name creates a new secret version, which gives the append-only
// semantics the config store relies on.
type AWSVault struct {
	client *secretsmanager.Client
}

var _ SecretVault = (*AWSVault)(nil)

// NewAWSVault builds the Secrets Manager client. An endpoint override points
// the client at localstack for development.
func NewAWSVault(ctx context.Context, cfg appconfig.Config) (*AWSVault, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.VaultRegion),
	}
	if cfg.VaultAccessKey != "" && cfg.VaultSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.VaultAccessKey, cfg.VaultSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.VaultEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.VaultEndpoint)
		}
	})

	return &AWSVault{client: client}, nil
}

// GetSecret reads the current version of a named secret.
func (v *AWSVault) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("secret %s: %w", name, domain.ErrSecretNotFound)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s: %w", name, domain.ErrSecretNotFound)
	}
	return *out.SecretString, nil
}

// PutSecret writes a value under name, creating the secret on first write and
// a new version on subsequent writes.
func (v *AWSVault) PutSecret(ctx context.Context, name, value string) error {
	_, err := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("put secret %s: %w", name, err)
	}

	_, err = v.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		var exists *types.ResourceExistsException
		if errors.As(err, &exists) {
			// Lost the create race; retry as a plain versioned write.
			if _, putErr := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
				SecretId:     aws.String(name),
				SecretString: aws.String(value),
			}); putErr != nil {
				return fmt.Errorf("put secret %s: %w", name, putErr)
			}
			return nil
		}
		return fmt.Errorf("create secret %s: %w", name, err)
	}
	return nil
}

// Package secrets resolves shared secrets stored in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/config"
)

// API is the subset of the Secrets Manager client we use.
type API interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// jsonKeys are tried in order when a secret holds a JSON object.
var jsonKeys = []string{"cron_secret", "CRON_SECRET", "secret"}

// Resolver reads secret values.
type Resolver struct {
	client API
}

// New wraps an existing client.
func New(client API) *Resolver {
	return &Resolver{client: client}
}

// NewFromRegion builds a client from the default AWS credential chain.
func NewFromRegion(ctx context.Context, region string) (*Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: load aws config")
	}
	return New(secretsmanager.NewFromConfig(awsCfg)), nil
}

// Get returns the secret stored at id. A JSON object secret yields the value
// of its cron_secret (or secret) key; anything else is returned trimmed.
func (r *Resolver) Get(ctx context.Context, id string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", eris.Wrapf(err, "secrets: get %s", id)
	}

	raw := aws.ToString(out.SecretString)
	if raw == "" && len(out.SecretBinary) > 0 {
		raw = string(out.SecretBinary)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.Errorf("secrets: %s is empty", id)
	}

	if strings.HasPrefix(raw, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			for _, k := range jsonKeys {
				if v, ok := obj[k].(string); ok && v != "" {
					return v, nil
				}
			}
			return "", eris.Errorf("secrets: %s has no cron_secret key", id)
		}
	}
	return raw, nil
}

// ResolveCronSecret fills cfg.Cron.Secret from cfg.Cron.SecretARN when no
// secret is set directly. A nil resolver is built from cfg.AWS.Region.
func ResolveCronSecret(ctx context.Context, cfg *config.Config, r *Resolver) error {
	if cfg.Cron.Secret != "" || cfg.Cron.SecretARN == "" {
		return nil
	}
	if r == nil {
		var err error
		if r, err = NewFromRegion(ctx, cfg.AWS.Region); err != nil {
			return err
		}
	}
	secret, err := r.Get(ctx, cfg.Cron.SecretARN)
	if err != nil {
		return err
	}
	cfg.Cron.Secret = secret
	return nil
}

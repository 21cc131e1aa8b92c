// Package secrets resolves configuration values stored in AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/tidwall/gjson"
)

var (
	ErrSecretNotFound = errors.New("secrets: secret not found")
	ErrSecretEmpty    = errors.New("secrets: secret value empty")
)

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads secrets by id.
type Resolver struct {
	client API
}

func NewResolver(client API) *Resolver {
	return &Resolver{client: client}
}

// Resolve fetches a secret. A reference of the form "secret-id#field" selects one field of a
// JSON secret.
func (resolver *Resolver) Resolve(ctx context.Context, reference string) (string, error) {
	secretID, field, _ := strings.Cut(strings.TrimSpace(reference), "#")
	if secretID == "" {
		return "", fmt.Errorf("%w: empty reference", ErrSecretNotFound)
	}
	output, err := resolver.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}
	value := aws.ToString(output.SecretString)
	if field != "" {
		if !gjson.Valid(value) {
			return "", fmt.Errorf("%w: %s is not a json secret", ErrSecretNotFound, secretID)
		}
		result := gjson.Get(value, field)
		if !result.Exists() {
			return "", fmt.Errorf("%w: %s has no field %q", ErrSecretNotFound, secretID, field)
		}
		value = result.String()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretEmpty, reference)
	}
	return value, nil
}

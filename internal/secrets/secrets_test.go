package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSecrets map[string]string

func (values stubSecrets) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func TestResolve(test *testing.T) {
	test.Parallel()
	resolver := NewResolver(stubSecrets{
		"travelbook/chapa":   `{"secret_key":"CHASECK_TEST-abc","webhook":"whsec"}`,
		"travelbook/plain":   " CHASECK_TEST-plain\n",
		"travelbook/blank":   "  ",
		"travelbook/notjson": "value",
	})

	testCases := []struct {
		name      string
		reference string
		expected  string
		err       error
	}{
		{name: "json field", reference: "travelbook/chapa#secret_key", expected: "CHASECK_TEST-abc"},
		{name: "plain value trimmed", reference: "travelbook/plain", expected: "CHASECK_TEST-plain"},
		{name: "missing field", reference: "travelbook/chapa#absent", err: ErrSecretNotFound},
		{name: "field of non json", reference: "travelbook/notjson#key", err: ErrSecretNotFound},
		{name: "blank", reference: "travelbook/blank", err: ErrSecretEmpty},
		{name: "empty reference", reference: " ", err: ErrSecretNotFound},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			value, err := resolver.Resolve(context.Background(), testCase.reference)
			if testCase.err != nil {
				require.ErrorIs(test, err, testCase.err)
				return
			}
			require.NoError(test, err)
			assert.Equal(test, testCase.expected, value)
		})
	}

	_, err := resolver.Resolve(context.Background(), "travelbook/missing")
	require.Error(test, err)
}

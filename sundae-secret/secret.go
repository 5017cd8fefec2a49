// Package sundaesecret loads configuration documents from AWS Secrets Manager.
package sundaesecret

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// LoadSecret decodes the JSON secret secretName into data, which must be a pointer.
func LoadSecret(s *session.Session, secretName string, data interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	if err := manager.Decode(secretName, data); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	return nil
}

// Package secrets resolves the token signing secrets. In production the
// configured values are KMS-encrypted ciphertext decrypted once at startup;
// in development they are used as-is.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/config"
	"github.com/pratik-me/e-shop/internal/util"
)

type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
}

// NewKMSClient builds the KMS client from the ambient AWS credential chain.
func NewKMSClient(ctx context.Context, cfg *config.Config) (*kms.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return kms.NewFromConfig(awsCfg), nil
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// TokenSecrets returns the access and refresh signing secrets, decrypting
// them through KMS when enabled.
func (m *Manager) TokenSecrets(ctx context.Context) (access, refresh []byte, err error) {
	access, err = m.resolve(ctx, m.config.Token.AccessSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve access token secret: %w", err)
	}

	refresh, err = m.resolve(ctx, m.config.Token.RefreshSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve refresh token secret: %w", err)
	}

	return access, refresh, nil
}

func (m *Manager) resolve(ctx context.Context, value string) ([]byte, error) {
	if !m.config.KMS.Enabled {
		return []byte(value), nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid base64 ciphertext: %w", err)
	}

	result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret via KMS: %w", err)
	}

	util.Debug("Secret decrypted via KMS",
		zap.String("key_id", m.config.KMS.KeyID))
	return result.Plaintext, nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// LoadFromSSM seeds the manager from an SSM parameter holding the
// {access, refresh} pair as JSON. Useful for crew devices provisioned
// centrally: the parameter is read once at startup, after which the local
// session file is the writable store.
func (m *Manager) LoadFromSSM(ctx context.Context, client *ssm.Client, param string) error {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get SSM parameter %s: %w", param, err)
	}

	var t Tokens
	if err := json.Unmarshal([]byte(aws.ToString(out.Parameter.Value)), &t); err != nil {
		return fmt.Errorf("parse SSM parameter %s: %w", param, err)
	}
	if t.Access == "" {
		return fmt.Errorf("SSM parameter %s holds no access token", param)
	}

	log.Info().Str("param", param).Msg("Session tokens loaded from SSM")
	return m.Set(t)
}

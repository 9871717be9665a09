package vault

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"gopkg.in/yaml.v3"
)

// ErrCredentialsNotFound is returned when no parameter exists for an instance.
var ErrCredentialsNotFound = errors.New("credentials not found")

// ParameterAPI is the part of the SSM client the vault uses.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM reads instance credentials stored as YAML maps in Parameter Store,
// one SecureString per instance at <prefix>/<instance name>.
type SSM struct {
	client ParameterAPI
}

func NewSSM(client ParameterAPI) *SSM {
	return &SSM{client: client}
}

type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Connect builds an SSM client from the default AWS chain. Static keys are
// used when both are given.
func Connect(ctx context.Context, opts Options) (*SSM, error) {
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSSM(ssm.NewFromConfig(cfg)), nil
}

func ParameterName(prefix, instanceName string) string {
	return path.Join("/", strings.Trim(prefix, "/"), instanceName)
}

func (v *SSM) Credentials(ctx context.Context, prefix, instanceName string) (map[string]string, error) {
	name := ParameterName(prefix, instanceName)
	out, err := v.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
		}
		return nil, fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}

	creds := map[string]string{}
	if err := yaml.Unmarshal([]byte(*out.Parameter.Value), &creds); err != nil {
		return nil, fmt.Errorf("unmarshal yaml %s: %w", name, err)
	}
	return creds, nil
}

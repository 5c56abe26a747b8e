package review

import (
	"context"

	"github.com/appsec/internal/aiconnectors"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/providers/github"
	"github.com/appsec/internal/providers/gitlab"
	"github.com/appsec/internal/providers/local"
	"github.com/appsec/internal/runerr"
)

// NewSource creates the change-set source selected by settings. diffFile is
// only read by the local source.
func NewSource(settings config.Settings, diffFile string) (providers.ChangeSetSource, error) {
	switch settings.Source {
	case config.SourceGitHub:
		return github.New(settings.GitHub), nil
	case config.SourceGitLab:
		source, err := gitlab.New(settings.GitLab)
		if err != nil {
			return nil, err
		}
		return source, nil
	case config.SourceLocal:
		return local.New(diffFile), nil
	default:
		return nil, runerr.Configuration("create source", "unsupported source %q", settings.Source)
	}
}

// NewConnector creates the reasoning connector selected by settings.
func NewConnector(ctx context.Context, settings config.Settings) (*aiconnectors.Connector, error) {
	connector, err := aiconnectors.NewConnector(ctx, aiconnectors.OptionsFromSettings(settings.AI))
	if err != nil {
		return nil, runerr.Configuration("create connector", "%v", err)
	}
	return connector, nil
}

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints. Model credentials are checked by
// the pipeline on Initialize.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describe(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	sourceGroups := make(map[string]struct{}, len(c.Sources.Groups))
	for _, g := range c.Sources.Groups {
		if _, dup := sourceGroups[g.ID]; dup {
			return fmt.Errorf("invalid config: duplicate source group id %q", g.ID)
		}
		sourceGroups[g.ID] = struct{}{}
	}

	notificationGroups := make(map[string]struct{}, len(c.Notifications.Groups))
	for _, g := range c.Notifications.Groups {
		if _, dup := notificationGroups[g.ID]; dup {
			return fmt.Errorf("invalid config: duplicate notification group id %q", g.ID)
		}
		notificationGroups[g.ID] = struct{}{}

		for _, sg := range g.SourceGroups {
			if _, ok := sourceGroups[sg]; !ok {
				return fmt.Errorf("invalid config: notification group %q subscribes to unknown source group %q", g.ID, sg)
			}
		}
	}

	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
	}
	return msg
}

package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
)

// Filter methods understood by the candidate matcher.
const (
	MethodNameContains = "name_contains"
	MethodCustom       = "custom"
)

const (
	defaultModalTitle        = "Dual Panel Selector"
	defaultLeftTitle         = "Left Panel"
	defaultRightTitle        = "Right Panel"
	defaultSearchPlaceholder = "Keyword Search"
	defaultCancelText        = "Cancel"
	defaultConfirmText       = "Confirm"
	defaultEmptyText         = "No data available"
	defaultNoButtonsText     = "Please click on a left panel item to view its related items"
	defaultPlaceholder       = "Please select"
	defaultTypeField         = "type"
	defaultLeftTypeValue     = "left"
	defaultRightTypeValue    = "right"
	defaultIDField           = "id"
	defaultNameField         = "name"

	// OtherGroup collects candidates without a type value.
	OtherGroup = "Other"
)

// ErrInvalidConfig reports props that cannot be decoded.
var ErrInvalidConfig = errors.New("invalid selector props")

// PanelConfig identifies a panel's records.
type PanelConfig struct {
	IDField   string `json:"idField"`
	NameField string `json:"nameField"`
	TypeField string `json:"typeField"`
	TypeValue string `json:"typeValue"`
}

// LeftPanelConfig adds the hierarchy settings of the parent panel.
type LeftPanelConfig struct {
	PanelConfig
	EnableTree    bool   `json:"enableTree"`
	ParentField   string `json:"parentField"`
	ParentIDField string `json:"parentIdField"`
}

// TreeEnabled reports whether records are linked into a hierarchy.
func (c LeftPanelConfig) TreeEnabled() bool {
	return c.EnableTree && c.ParentField != ""
}

// FilterMatchConfig governs how a child is judged related to a parent.
type FilterMatchConfig struct {
	Method                  string `json:"method"`
	CustomFilterField       string `json:"customFilterField"`
	CustomFilterParentField string `json:"customFilterParentField"`
}

// TextConfig holds every display string of the selector.
type TextConfig struct {
	ModalTitle        string `json:"modalTitle"`
	LeftTitle         string `json:"leftTitle"`
	RightTitle        string `json:"rightTitle"`
	SearchPlaceholder string `json:"searchPlaceholder"`
	CancelText        string `json:"cancelText"`
	ConfirmText       string `json:"confirmText"`
	EmptyText         string `json:"emptyText"`
	NoButtonsText     string `json:"noButtonsText"`
	Placeholder       string `json:"placeholder"`
}

// Config is the fully resolved selector configuration. It is computed once
// per session by ResolveConfig and read everywhere else as is.
type Config struct {
	Text   TextConfig          `json:"textConfig"`
	Left   LeftPanelConfig     `json:"leftPanel"`
	Right  PanelConfig         `json:"rightPanel"`
	Common filter.CommonFilter `json:"commonFilter"`
	Match  FilterMatchConfig   `json:"filter"`
}

// DefaultConfig is the configuration of a selector without props.
func DefaultConfig() Config {
	cfg, _ := ResolveConfig(nil)
	return cfg
}

type rawProps struct {
	TextConfig rawText `mapstructure:"textConfig"`
	DataConfig rawData `mapstructure:"dataConfig"`

	ModalTitle        string `mapstructure:"modalTitle"`
	LeftTitle         string `mapstructure:"leftTitle"`
	RightTitle        string `mapstructure:"rightTitle"`
	SearchPlaceholder string `mapstructure:"searchPlaceholder"`
	CancelText        string `mapstructure:"cancelText"`
	ConfirmText       string `mapstructure:"confirmText"`
	EmptyText         string `mapstructure:"emptyText"`
	NoButtonsText     string `mapstructure:"noButtonsText"`
	Placeholder       string `mapstructure:"placeholder"`
}

type rawText struct {
	ModalTitle        string `mapstructure:"modalTitle"`
	LeftTitle         string `mapstructure:"leftTitle"`
	RightTitle        string `mapstructure:"rightTitle"`
	SearchPlaceholder string `mapstructure:"searchPlaceholder"`
	CancelText        string `mapstructure:"cancelText"`
	ConfirmText       string `mapstructure:"confirmText"`
	EmptyText         string `mapstructure:"emptyText"`
	NoButtonsText     string `mapstructure:"noButtonsText"`
}

type rawData struct {
	CommonFilter struct {
		Enabled bool   `mapstructure:"enabled"`
		Field   string `mapstructure:"field"`
		Value   any    `mapstructure:"value"`
	} `mapstructure:"commonFilter"`
	LeftPanel struct {
		TypeField     string `mapstructure:"typeField"`
		TypeValue     string `mapstructure:"typeValue"`
		IDField       string `mapstructure:"idField"`
		NameField     string `mapstructure:"nameField"`
		EnableTree    bool   `mapstructure:"enableTree"`
		ParentField   string `mapstructure:"parentField"`
		ParentIDField string `mapstructure:"parentIdField"`
	} `mapstructure:"leftPanel"`
	RightPanel rawPanel `mapstructure:"rightPanel"`
	Filter     struct {
		Method                  string `mapstructure:"method"`
		CustomFilterField       string `mapstructure:"customFilterField"`
		CustomFilterParentField string `mapstructure:"customFilterParentField"`
	} `mapstructure:"filter"`
}

type rawPanel struct {
	TypeField string `mapstructure:"typeField"`
	TypeValue string `mapstructure:"typeValue"`
	IDField   string `mapstructure:"idField"`
	NameField string `mapstructure:"nameField"`
}

// ResolveConfig decodes component props (the textConfig / dataConfig shape
// plus legacy top-level text keys) and fills every default. Each text takes
// the textConfig value, else the top-level prop, else the literal default.
func ResolveConfig(props map[string]any) (Config, error) {
	var raw rawProps
	if len(props) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &raw,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Config{}, err
		}
		if err := dec.Decode(props); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	d := raw.DataConfig
	cfg := Config{
		Text: TextConfig{
			ModalTitle:        firstNonEmpty(raw.TextConfig.ModalTitle, raw.ModalTitle, defaultModalTitle),
			LeftTitle:         firstNonEmpty(raw.TextConfig.LeftTitle, raw.LeftTitle, defaultLeftTitle),
			RightTitle:        firstNonEmpty(raw.TextConfig.RightTitle, raw.RightTitle, defaultRightTitle),
			SearchPlaceholder: firstNonEmpty(raw.TextConfig.SearchPlaceholder, raw.SearchPlaceholder, defaultSearchPlaceholder),
			CancelText:        firstNonEmpty(raw.TextConfig.CancelText, raw.CancelText, defaultCancelText),
			ConfirmText:       firstNonEmpty(raw.TextConfig.ConfirmText, raw.ConfirmText, defaultConfirmText),
			EmptyText:         firstNonEmpty(raw.TextConfig.EmptyText, raw.EmptyText, defaultEmptyText),
			NoButtonsText:     firstNonEmpty(raw.TextConfig.NoButtonsText, raw.NoButtonsText, defaultNoButtonsText),
			Placeholder:       firstNonEmpty(raw.Placeholder, defaultPlaceholder),
		},
		Left: LeftPanelConfig{
			PanelConfig: PanelConfig{
				IDField:   firstNonEmpty(d.LeftPanel.IDField, defaultIDField),
				NameField: firstNonEmpty(d.LeftPanel.NameField, defaultNameField),
				TypeField: firstNonEmpty(d.LeftPanel.TypeField, defaultTypeField),
				TypeValue: firstNonEmpty(d.LeftPanel.TypeValue, defaultLeftTypeValue),
			},
			EnableTree:    d.LeftPanel.EnableTree,
			ParentField:   strings.TrimSpace(d.LeftPanel.ParentField),
			ParentIDField: strings.TrimSpace(d.LeftPanel.ParentIDField),
		},
		Right: PanelConfig{
			IDField:   firstNonEmpty(d.RightPanel.IDField, defaultIDField),
			NameField: firstNonEmpty(d.RightPanel.NameField, defaultNameField),
			TypeField: firstNonEmpty(d.RightPanel.TypeField, defaultTypeField),
			TypeValue: firstNonEmpty(d.RightPanel.TypeValue, defaultRightTypeValue),
		},
		Common: filter.CommonFilter{
			Enabled: d.CommonFilter.Enabled,
			Field:   strings.TrimSpace(d.CommonFilter.Field),
			Value:   d.CommonFilter.Value,
		},
		Match: FilterMatchConfig{
			Method:                  firstNonEmpty(d.Filter.Method, MethodNameContains),
			CustomFilterField:       strings.TrimSpace(d.Filter.CustomFilterField),
			CustomFilterParentField: strings.TrimSpace(d.Filter.CustomFilterParentField),
		},
	}
	return cfg, nil
}

// Validate reports configuration that makes a panel degrade to empty or
// flat output. The selector still works with such a configuration; callers
// surface the result as a diagnostic.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.Match.Method {
	case MethodNameContains:
	case MethodCustom:
		if c.Match.CustomFilterField == "" || c.Match.CustomFilterParentField == "" {
			result = multierror.Append(result, errors.New("custom filter method needs customFilterField and customFilterParentField"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown filter method %q, right panel will stay empty", c.Match.Method))
	}
	if c.Left.EnableTree && c.Left.ParentField == "" {
		result = multierror.Append(result, errors.New("tree enabled without parentField, left panel renders flat"))
	}
	if c.Common.Enabled && c.Common.Expr().IsEmpty() {
		result = multierror.Append(result, errors.New("common filter enabled without field or value, ignored"))
	}
	if c.Left.TypeField == c.Right.TypeField && c.Left.TypeValue == c.Right.TypeValue {
		result = multierror.Append(result, fmt.Errorf("both panels are tagged %s=%s, value items cannot be told apart", c.Left.TypeField, c.Left.TypeValue))
	}
	return result.ErrorOrNil()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

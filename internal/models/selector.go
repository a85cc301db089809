package models

import "gorm.io/datatypes"

// SelectorFieldModel is the schema of one form field rendered as a dual
// panel selector: its association to the target collection and the
// component props (textConfig, dataConfig and legacy text keys).
type SelectorFieldModel struct {
	Base
	Name       string         `json:"name"       gorm:"size:191;uniqueIndex;not null"`
	Collection string         `json:"collection" gorm:"size:191;index"`
	Target     string         `json:"target"     gorm:"size:191"`
	TargetKey  string         `json:"targetKey"  gorm:"size:191"`
	ForeignKey string         `json:"foreignKey" gorm:"size:191"`
	SourceKey  string         `json:"sourceKey"  gorm:"size:191"`
	Interface  string         `json:"interface"  gorm:"size:32"`
	Required   bool           `json:"required"`
	Props      datatypes.JSON `json:"props"`
}

func (SelectorFieldModel) TableName() string { return "selector_fields" }

// SelectorCollectionModel holds the field metadata of a target collection,
// used to decide which fields a keyword search may look at.
type SelectorCollectionModel struct {
	Base
	Name   string         `json:"name"   gorm:"size:191;uniqueIndex;not null"`
	Fields datatypes.JSON `json:"fields"`
}

func (SelectorCollectionModel) TableName() string { return "selector_collections" }

// OptionModel is a generic key-value row. Selector sessions keep retained
// selections here when no Redis is configured.
type OptionModel struct {
	ID    uint   `json:"-"     gorm:"primaryKey;autoIncrement"`
	Name  string `json:"name"  gorm:"size:191;uniqueIndex;not null"`
	Value string `json:"value" gorm:"type:longtext"`
}

func (OptionModel) TableName() string { return "options" }

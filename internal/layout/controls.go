package layout

import "time"

// ControlType identifies the kind of an interactive control
type ControlType string

const (
	ControlDropdown        ControlType = "dropdown"
	ControlDatePickerRange ControlType = "date-picker-range"
	ControlChecklist       ControlType = "checklist"
	ControlRadioItems      ControlType = "radio-items"
)

// Control is an interactive element whose value feeds the callbacks
type Control interface {
	ControlID() string
	ControlType() ControlType
}

// absent reports whether c holds no control, including a typed nil pointer
func absent(c Control) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *Dropdown:
		return v == nil
	case *DatePickerRange:
		return v == nil
	case *Checklist:
		return v == nil
	case *RadioItems:
		return v == nil
	}
	return false
}

// Option is one choice of a dropdown, checklist or radio group
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Dropdown is a single or multi select
type Dropdown struct {
	ID      string
	Options []Option
	Value   []string
	Multi   bool
	Class   string
}

func (d *Dropdown) ControlID() string        { return d.ID }
func (d *Dropdown) ControlType() ControlType { return ControlDropdown }

// Selected reports whether value is part of the dropdown value
func (d *Dropdown) Selected(value string) bool {
	for _, v := range d.Value {
		if v == value {
			return true
		}
	}
	return false
}

// DatePickerRange selects a start and end day between Min and Max
type DatePickerRange struct {
	ID            string
	Min           time.Time
	Max           time.Time
	Start         time.Time
	End           time.Time
	DisplayFormat string
}

func (d *DatePickerRange) ControlID() string        { return d.ID }
func (d *DatePickerRange) ControlType() ControlType { return ControlDatePickerRange }

// Checklist is a set of independent checkboxes
type Checklist struct {
	ID      string
	Options []Option
	Value   []string
	Switch  bool
}

func (c *Checklist) ControlID() string        { return c.ID }
func (c *Checklist) ControlType() ControlType { return ControlChecklist }

func (c *Checklist) Checked(value string) bool {
	for _, v := range c.Value {
		if v == value {
			return true
		}
	}
	return false
}

// RadioItems is a group of mutually exclusive choices
type RadioItems struct {
	ID      string
	Options []Option
	Value   string
	Inline  bool
}

func (r *RadioItems) ControlID() string        { return r.ID }
func (r *RadioItems) ControlType() ControlType { return ControlRadioItems }
